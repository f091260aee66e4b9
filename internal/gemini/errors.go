package gemini

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse indicates the backend answered without any usable
// payload. Callers must treat this as an upstream failure, not success.
var ErrEmptyResponse = errors.New("empty response from backend")

// ErrNoAPIKey indicates the backend credential is not configured.
var ErrNoAPIKey = errors.New("missing GEMINI_API_KEY")

// APIError is an error returned by the generative backend.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gemini API error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("gemini API error: %s", e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the backend itself throttled the call.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}
