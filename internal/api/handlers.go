package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/apperror"
	"github.com/lexiqai/speech-gateway/internal/service"
	"github.com/lexiqai/speech-gateway/internal/transcript"
)

// Transcriber runs a transcription request. *service.Service satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, req service.Request) (*service.Result, error)
}

// transcribeForm holds the multipart fields of a transcription upload.
// Both the Spanish and English spellings of the role hints are accepted.
type transcribeForm struct {
	UserID      string `form:"user_id" validate:"required,max=255"`
	Language    string `form:"language" validate:"omitempty,min=2,max=16"`
	NumSpeakers int    `form:"num_speakers" validate:"min=0,max=20"`
	ClienteID   string `form:"cliente_id" validate:"max=128"`
	ClientID    string `form:"client_id" validate:"max=128"`
	EjecutivoID string `form:"ejecutivo_id" validate:"max=128"`
	ExecutiveID string `form:"executive_id" validate:"max=128"`
}

func (f *transcribeForm) roleContext() *transcript.RoleContext {
	rc := &transcript.RoleContext{
		ClientHint:    firstNonEmpty(f.ClienteID, f.ClientID),
		ExecutiveHint: firstNonEmpty(f.EjecutivoID, f.ExecutiveID),
	}
	if rc.IsZero() {
		return nil
	}
	return rc
}

type transcribeQuery struct {
	Mode string `form:"mode" validate:"omitempty,oneof=simple diarization"`
}

// SegmentMetadata carries the caller's role hints on each segment.
type SegmentMetadata struct {
	Context *transcript.RoleContext `json:"context"`
}

// SegmentResponse is one speaker-attributed segment.
type SegmentResponse struct {
	Speaker    string           `json:"speaker"`
	Role       string           `json:"role"`
	Start      float64          `json:"start"`
	End        float64          `json:"end"`
	Text       string           `json:"text"`
	Confidence float64          `json:"confidence"`
	Metadata   *SegmentMetadata `json:"metadata,omitempty"`
}

// TranscriptionResponse is returned in simple mode.
type TranscriptionResponse struct {
	Transcription   string    `json:"transcription"`
	Language        string    `json:"language"`
	Confidence      float64   `json:"confidence"`
	DurationSeconds float64   `json:"duration_seconds"`
	Mode            string    `json:"mode"`
	CreatedAt       time.Time `json:"created_at"`
}

// DiarizationResponse adds speaker segments to TranscriptionResponse.
type DiarizationResponse struct {
	TranscriptionResponse
	Segments    []SegmentResponse `json:"segments"`
	NumSpeakers int               `json:"num_speakers"`
}

// Handler serves the transcription endpoint.
type Handler struct {
	svc    Transcriber
	logger zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc Transcriber, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Transcribe handles POST /api/v1/transcribe.
func (h *Handler) Transcribe(c *gin.Context) {
	var query transcribeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.reject(c, apperror.Validation("invalid query parameters").WithCause(err))
		return
	}
	if err := validateStruct(&query); err != nil {
		h.reject(c, err)
		return
	}

	var form transcribeForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		h.reject(c, bindError(err))
		return
	}
	if err := validateStruct(&form); err != nil {
		h.reject(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.reject(c, bindError(err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.reject(c, apperror.Validation("could not read uploaded file").WithCause(err))
		return
	}
	defer f.Close()

	mode := transcript.Mode(query.Mode)
	if mode == "" {
		mode = transcript.ModeSimple
	}

	res, err := h.svc.Transcribe(c.Request.Context(), service.Request{
		RequestID:   c.GetString(ctxRequestID),
		UserID:      form.UserID,
		Filename:    fh.Filename,
		Audio:       f,
		Language:    strings.ToLower(strings.TrimSpace(form.Language)),
		Mode:        mode,
		NumSpeakers: form.NumSpeakers,
		Context:     form.roleContext(),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(res))
}

// reject answers a request that never reached the service.
func (h *Handler) reject(c *gin.Context, err error) {
	h.logger.Debug().
		Err(err).
		Str("request_id", c.GetString(ctxRequestID)).
		Msg("Rejected transcription request")
	abortWithError(c, err)
}

func toResponse(res *service.Result) any {
	base := TranscriptionResponse{
		Transcription:   res.FullText,
		Language:        res.Language,
		Confidence:      res.Confidence,
		DurationSeconds: res.DurationSeconds,
		Mode:            string(res.Mode),
		CreatedAt:       res.CreatedAt,
	}
	if res.Mode != transcript.ModeDiarization {
		return base
	}

	segments := make([]SegmentResponse, 0, len(res.Segments))
	for _, s := range res.Segments {
		seg := SegmentResponse{
			Speaker:    string(s.Speaker),
			Role:       string(s.Role),
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Confidence: s.SpeechConfidence,
		}
		if !s.Context.IsZero() {
			seg.Metadata = &SegmentMetadata{Context: s.Context}
		}
		segments = append(segments, seg)
	}
	return DiarizationResponse{
		TranscriptionResponse: base,
		Segments:              segments,
		NumSpeakers:           res.NumSpeakers,
	}
}

// bindError turns multipart parsing failures into VALIDATION errors.
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperror.Newf(apperror.KindValidation, "request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, http.ErrMissingFile):
		return apperror.Validation("file is required").
			WithDetail("fields", []FieldError{{Field: "file", Message: "is required"}})
	case errors.Is(err, http.ErrNotMultipart):
		return apperror.Validation("request must be multipart/form-data")
	default:
		return apperror.Validation("invalid form data").WithCause(err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
