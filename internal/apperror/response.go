package apperror

// Response is the JSON body returned to clients on failure.
type Response struct {
	Error Body `json:"error"`
}

// Body carries the client-visible part of an Error.
type Body struct {
	Code    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToResponse converts any error into a client response. Causes are never
// exposed; foreign errors collapse to a generic internal message.
func ToResponse(err error) Response {
	appErr, ok := As(err)
	if !ok {
		return Response{Error: Body{Code: KindInternal, Message: "An unexpected error occurred"}}
	}
	return Response{Error: Body{Code: appErr.Kind, Message: appErr.Message, Details: appErr.Details}}
}
