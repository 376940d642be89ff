package cadre

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGatewayRetryTransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	inner := GatewayFunc(func(_ context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		if calls.Add(1) < 3 {
			return nil, &ErrHTTP{Status: 429, Body: "slow down"}
		}
		return Payload{"ok": true}, nil
	})
	gw := WithGatewayRetry(inner, RetryBaseDelay(time.Millisecond))

	out, err := gw.Call(context.Background(), "p", nil, AgentContext{})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !out.Bool("ok") {
		t.Errorf("output = %v, want ok", out)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestGatewayRetryExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	inner := GatewayFunc(func(_ context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		calls.Add(1)
		return nil, &ErrHTTP{Status: 503, Body: "unavailable"}
	})
	gw := WithGatewayRetry(inner, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	_, err := gw.Call(context.Background(), "p", nil, AgentContext{})
	if !IsKind(err, KindUpstreamFailure) {
		t.Fatalf("error kind = %q, want upstream_failure: %v", KindOf(err), err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestGatewayRetrySkipsNonTransientErrors(t *testing.T) {
	var calls atomic.Int32
	inner := GatewayFunc(func(_ context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		calls.Add(1)
		return nil, &ErrHTTP{Status: 400, Body: "bad request"}
	})
	gw := WithGatewayRetry(inner, RetryBaseDelay(time.Millisecond))

	if _, err := gw.Call(context.Background(), "p", nil, AgentContext{}); err == nil {
		t.Fatal("Call() succeeded, want error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx other than 429 must not retry)", got)
	}
}

func TestGatewayRetryHonorsRetryAfterFloor(t *testing.T) {
	var calls atomic.Int32
	inner := GatewayFunc(func(_ context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		if calls.Add(1) == 1 {
			return nil, &ErrHTTP{Status: 429, RetryAfter: 30 * time.Millisecond}
		}
		return Payload{}, nil
	})
	gw := WithGatewayRetry(inner, RetryBaseDelay(time.Millisecond))

	start := time.Now()
	if _, err := gw.Call(context.Background(), "p", nil, AgentContext{}); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("retried after %v, want at least the 30ms Retry-After floor", elapsed)
	}
}

func TestGatewayRetryStopsOnContextCancel(t *testing.T) {
	inner := GatewayFunc(func(_ context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		return nil, &ErrHTTP{Status: 429}
	})
	gw := WithGatewayRetry(inner, RetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := gw.Call(ctx, "p", nil, AgentContext{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call() did not abandon the backoff wait on cancel")
	}
}

func TestGatewayRetryOverallTimeout(t *testing.T) {
	inner := GatewayFunc(func(ctx context.Context, _ string, _ Payload, _ AgentContext) (Payload, error) {
		return nil, &ErrHTTP{Status: 503}
	})
	gw := WithGatewayRetry(inner,
		RetryMaxAttempts(10),
		RetryBaseDelay(20*time.Millisecond),
		RetryTimeout(30*time.Millisecond))

	_, err := gw.Call(context.Background(), "p", nil, AgentContext{})
	if err != context.DeadlineExceeded {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRetryBackoffGrows(t *testing.T) {
	base := 10 * time.Millisecond
	for i := 0; i < 4; i++ {
		d := retryBackoff(base, i)
		min := base * (1 << i)
		max := min + min/2
		if d < min || d > max {
			t.Errorf("retryBackoff(%v, %d) = %v, want within [%v, %v]", base, i, d, min, max)
		}
	}
}
