package handlers

// ErrorResponse is the standard API error body (message only). Rendered by
// the server's central error handler for every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// NewErrorResponse builds the standard error body.
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Message: message}
}
