package cadre

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// ModelGateway abstracts the LLM backend. A black box from the orchestrator's
// perspective: agents pass a prompt and a structured payload, and get a
// structured response back. Transport and upstream errors surface as task
// failures with kind UpstreamFailure.
type ModelGateway interface {
	// Call sends a prompt with its payload under the given caller context.
	Call(ctx context.Context, prompt string, payload Payload, actx AgentContext) (Payload, error)
}

// GatewayFunc adapts a function to the ModelGateway interface.
type GatewayFunc func(ctx context.Context, prompt string, payload Payload, actx AgentContext) (Payload, error)

func (f GatewayFunc) Call(ctx context.Context, prompt string, payload Payload, actx AgentContext) (Payload, error) {
	return f(ctx, prompt, payload, actx)
}

// retryGateway wraps a ModelGateway and automatically retries transient HTTP
// errors (status 429 Too Many Requests and 503 Service Unavailable) with
// exponential backoff.
type retryGateway struct {
	inner       ModelGateway
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// GatewayRetryOption configures a retryGateway.
type GatewayRetryOption func(*retryGateway)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) GatewayRetryOption {
	return func(r *retryGateway) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) GatewayRetryOption {
	return func(r *retryGateway) { r.baseDelay = d }
}

// RetryTimeout sets the overall deadline for the entire retry sequence.
// The zero value (default) disables the deadline.
func RetryTimeout(d time.Duration) GatewayRetryOption {
	return func(r *retryGateway) { r.timeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN, final failures after exhausting attempts at ERROR. Default: no output.
func RetryLogger(l *slog.Logger) GatewayRetryOption {
	return func(r *retryGateway) { r.logger = l }
}

// WithGatewayRetry wraps gw with automatic retry on transient HTTP errors
// (429, 503). Retries use exponential backoff with jitter; when the error
// carries a Retry-After duration, the delay is at least that long.
//
//	gw = cadre.WithGatewayRetry(httpgw.New(baseURL, key, model))
//	gw = cadre.WithGatewayRetry(gw, cadre.RetryMaxAttempts(5))
func WithGatewayRetry(gw ModelGateway, opts ...GatewayRetryOption) ModelGateway {
	r := &retryGateway{
		inner:       gw,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *retryGateway) Call(ctx context.Context, prompt string, payload Payload, actx AgentContext) (Payload, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var last error
	for i := 0; i < r.maxAttempts; i++ {
		result, err := r.inner.Call(ctx, prompt, payload, actx)
		if err == nil || !isTransient(err) {
			return result, err
		}
		last = err
		r.logger.Warn("retrying transient gateway error",
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			delay := retryDelay(r.baseDelay, i, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.logger.Error("all gateway retry attempts exhausted",
		"attempts", r.maxAttempts,
		"error", last)
	return nil, last
}

// withTimeout returns a child context with a deadline if r.timeout is set.
// If ctx already has an earlier deadline, returns ctx unchanged.
func (r *retryGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryDelay computes the delay before retry attempt i, using exponential
// backoff as a floor and the server's Retry-After value (if present) as a
// minimum.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	var e *ErrHTTP
	if errors.As(err, &e) && e.RetryAfter > backoff {
		return e.RetryAfter
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// compile-time checks
var _ ModelGateway = (*retryGateway)(nil)
var _ ModelGateway = (GatewayFunc)(nil)
