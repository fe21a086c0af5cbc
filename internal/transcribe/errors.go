package transcribe

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assemblyai error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsAuthError reports whether err was caused by a rejected API key.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// TranscriptError is a transcript job that finished with status "error".
type TranscriptError struct {
	ID      string
	Message string
}

func (e *TranscriptError) Error() string {
	return fmt.Sprintf("transcript %s failed: %s", e.ID, e.Message)
}
