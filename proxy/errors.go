package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingUserMessage = errors.New("at least one user message is required")
	ErrEmptyInput         = errors.New("input must contain at least one text")

	// ErrUpstreamUnavailable wraps transport failures: the runtime was not
	// reached or the connection broke before a status line arrived.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type ModelNotAllowedError struct {
	Model   string
	Allowed []string
}

func (e *ModelNotAllowedError) Error() string {
	return fmt.Sprintf("model '%s' is not allowed; allowed: %v", e.Model, e.Allowed)
}

// UpstreamError is a non-2xx reply from the runtime. Body is kept verbatim
// so it can be handed back to the client unchanged.
type UpstreamError struct {
	Method      string
	Path        string
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, string(e.Body))
}

type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// statusForError maps the error taxonomy onto HTTP status codes.
// UpstreamError is handled separately since its body is relayed verbatim.
func statusForError(err error) int {
	var notAllowed *ModelNotAllowedError
	var generation *GenerationError
	var embedding *EmbeddingError
	var pullFailed *pullFailedError

	switch {
	case errors.As(err, &notAllowed),
		errors.Is(err, ErrMissingUserMessage),
		errors.Is(err, ErrEmptyInput):
		return http.StatusBadRequest
	case errors.As(err, &generation), errors.As(err, &embedding):
		return http.StatusInternalServerError
	case errors.As(err, &pullFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
