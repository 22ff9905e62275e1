// Package apperror defines the closed set of failure kinds the gateway
// returns and how each maps to an HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	// KindValidation covers bad input: empty audio, unsupported format, no speakers detected.
	KindValidation Kind = "VALIDATION"
	// KindAuth covers a missing or invalid credential.
	KindAuth Kind = "AUTH"
	// KindConfig covers a feature requested without the configuration it needs.
	KindConfig Kind = "CONFIG"
	// KindEngine covers transcription or diarization engine failures.
	KindEngine Kind = "ENGINE"
	// KindAlignment covers internal contract violations while reconciling engine output.
	KindAlignment Kind = "ALIGNMENT"
	// KindInternal is used for errors that did not originate from this package.
	KindInternal Kind = "INTERNAL"
)

var statusByKind = map[Kind]int{
	KindValidation: http.StatusBadRequest,
	KindAuth:       http.StatusUnauthorized,
	KindConfig:     http.StatusForbidden,
	KindEngine:     http.StatusInternalServerError,
	KindAlignment:  http.StatusInternalServerError,
	KindInternal:   http.StatusInternalServerError,
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code the request layer should answer with.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Auth(message string) *Error { return New(KindAuth, message) }

func Config(message string) *Error { return New(KindConfig, message) }

// Engine wraps a failure reported by the named engine.
func Engine(engine string, cause error) *Error {
	return Newf(KindEngine, "%s engine failed", engine).WithCause(cause).WithDetail("engine", engine)
}

func Alignment(message string) *Error { return New(KindAlignment, message) }

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf maps any error to an HTTP status.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Annotate attaches a detail to err when it is an *Error and returns err unchanged otherwise.
func Annotate(err error, key string, value any) error {
	if appErr, ok := As(err); ok {
		appErr.WithDetail(key, value)
	}
	return err
}
