package cadre

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"structured", NewError(KindBusy, "agent busy"), KindBusy},
		{"wrapped structured", fmt.Errorf("step failed: %w", NewError(KindValidation, "bad")), KindValidation},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("task: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCancelled},
		{"http", &ErrHTTP{Status: 502, Body: "bad gateway"}, KindUpstreamFailure},
		{"wrapped http", fmt.Errorf("gateway: %w", &ErrHTTP{Status: 429}), KindUpstreamFailure},
		{"plain", errors.New("something"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindUpstreamFailure, "search failed", cause)

	if got := err.Error(); got != "upstream_failure: search failed: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestIsKindStructuredOverContext(t *testing.T) {
	// An explicit kind on the chain wins over the context sentinel beneath it.
	err := WrapError(KindUpstreamFailure, "gave up", context.DeadlineExceeded)
	if !IsKind(err, KindUpstreamFailure) {
		t.Errorf("kind = %q, want upstream_failure", KindOf(err))
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"5", 5 * time.Second},
		{"120", 2 * time.Minute},
		{"-3", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	if d < 80*time.Second || d > 90*time.Second {
		t.Errorf("ParseRetryAfter(%q) = %v, want about 90s", future, d)
	}

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(past); got != 0 {
		t.Errorf("ParseRetryAfter(past date) = %v, want 0", got)
	}
}
