package transcribe

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// retryPolicy decides whether a failed call may be sent again.
type retryPolicy func(*APIError) bool

// transient retries rate limits and server errors. Only safe for reads.
func transient(e *APIError) bool { return e.retryable() }

// rateLimited retries only requests the API refused before doing any work.
func rateLimited(e *APIError) bool { return e.Status == http.StatusTooManyRequests }

func retryWithBackoff(ctx context.Context, maxRetries int, retryIf retryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(lastErr, &apiErr) || !retryIf(apiErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
