package agent

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures caught before any external call is made.
var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoDataset     = errors.New("no dataset loaded; upload a CSV first")
	ErrNoAPIKey      = errors.New("agent API key is not configured")
)

// APIError represents a structured error response from the agent service.
type APIError struct {
	StatusCode int
	Status     string // service status string, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if e.Status != "" {
			return fmt.Sprintf("agent api error: status=%d %s: %s", e.StatusCode, e.Status, e.Message)
		}
		return fmt.Sprintf("agent api error: status=%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("agent api error: status=%d", e.StatusCode)
}

// AuthError indicates authentication/authorization failures (401/403 or
// an invalid API key reported as 400).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// QuotaExceededError indicates billing/quota exhaustion.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the configured model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates the service rejected the request itself.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// ServerError indicates 5xx errors from the service.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("agent service error: %s", e.APIError.Error()) }

// UnreachableError indicates the agent endpoint could not be reached.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("agent unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("agent unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// BlockedError indicates the service answered but produced no usable
// content, either because safety filtering blocked the prompt or the
// response came back empty.
type BlockedError struct{ Reason string }

func (e *BlockedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("agent returned no answer: %s", e.Reason)
	}
	return "agent returned no answer"
}
