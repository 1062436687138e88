package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured indicates no credential is set for the selected provider.
// Calls fail immediately and are never retried.
type ErrNotConfigured struct {
	Provider string
	Err      error
}

func (e *ErrNotConfigured) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider %q not configured: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("LLM provider %q not configured", e.Provider)
}

func (e *ErrNotConfigured) Unwrap() error { return e.Err }

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the LLM returned content that does not
// conform to the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unreachable, or
// rejected the request.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// IsGatewayError reports whether err came from the model boundary: missing
// credentials, transport or provider failures, rate limits, rejected output,
// or an expired deadline.
func IsGatewayError(err error) bool {
	if err == nil {
		return false
	}
	var (
		nc  *ErrNotConfigured
		rl  *ErrRateLimit
		inv *ErrInvalidResponse
		un  *ErrProviderUnavailable
		mt  *ErrMaxTokensExceeded
	)
	return errors.As(err, &nc) || errors.As(err, &rl) || errors.As(err, &inv) ||
		errors.As(err, &un) || errors.As(err, &mt) ||
		errors.Is(err, context.DeadlineExceeded)
}
