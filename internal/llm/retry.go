package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider is a decorator that retries transient errors with
// exponential backoff and jitter. It never waits past the caller's
// deadline: when the next backoff would not fit, the last provider error
// is returned as is.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

type retryPolicy int

const (
	noRetry retryPolicy = iota
	retryOnce
	retryTransient
)

// policyFor classifies err. Rate limits, unavailable providers and plain
// transport errors are transient; a rejected structured reply is retried
// once; everything else is final.
func policyFor(err error) retryPolicy {
	var (
		mt  *ErrMaxTokensExceeded
		inv *ErrInvalidResponse
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return noRetry
	case errors.As(err, &mt):
		return noRetry
	case errors.As(err, &inv):
		return retryOnce
	}
	if _, ok := asNotConfigured(err); ok {
		return noRetry
	}
	return retryTransient
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	retriedInvalid := false

	for attempt := range max(r.config.MaxAttempts, 1) {
		if attempt > 0 {
			wait := r.backoff(attempt-1, lastErr)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
				return nil, lastErr
			}
			slog.Debug("retrying llm request",
				"purpose", PurposeFrom(ctx), "model", req.Model,
				"attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		switch policyFor(err) {
		case noRetry:
			return nil, err
		case retryOnce:
			if retriedInvalid {
				return nil, err
			}
			retriedInvalid = true
		}
	}

	return nil, lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// backoff returns the wait before retry n (zero-based). A rate limit's
// RetryAfter wins over the computed value.
func (r *RetryProvider) backoff(n int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	base := math.Min(
		float64(r.config.InitialWait)*math.Pow(r.config.Multiplier, float64(n)),
		float64(r.config.MaxWait),
	)
	// ±20% jitter.
	jittered := base * (1 + 0.2*(2*rand.Float64()-1))
	return time.Duration(math.Max(jittered, 0))
}
