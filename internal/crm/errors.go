package crm

import (
	"fmt"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for diagnosis.
const maxErrorBody = 2048

// AuthError means the credential was rejected. It is never retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("crm: credential rejected (status %d): %s", e.Status, e.Body)
}

// ProviderError is any other non-success response.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("crm: search failed (status %d): %s", e.Status, e.Body)
}

// RateLimitedError is a 429. RetryAfter is zero when the provider gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("crm: rate limited, retry after %s", e.RetryAfter)
	}
	return "crm: rate limited"
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
