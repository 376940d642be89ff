package cadre

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies failures across the orchestration engine. Kinds are
// stable string tags recorded on AgentResult and surfaced in metrics.
type ErrorKind string

const (
	// KindNotSupported means the agent cannot handle the task type.
	KindNotSupported ErrorKind = "not_supported"
	// KindBusy means a second concurrent ProcessTask hit the same agent,
	// or the agent was paused or stopped.
	KindBusy ErrorKind = "busy"
	// KindCapacityExceeded means the live-agent limit was reached.
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	// KindUnknownAgentType means no factory is registered for the type.
	KindUnknownAgentType ErrorKind = "unknown_agent_type"
	// KindDependencyUnsatisfied means an upstream step terminated non-success.
	KindDependencyUnsatisfied ErrorKind = "dependency_unsatisfied"
	// KindTimeout means the task deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindCancelled means the workflow was cancelled.
	KindCancelled ErrorKind = "cancelled"
	// KindUpstreamFailure means the model gateway or an external service failed.
	KindUpstreamFailure ErrorKind = "upstream_failure"
	// KindValidation means the workflow definition was rejected.
	KindValidation ErrorKind = "validation_error"
	// KindInternal means a bug: handler panic or unexpected state.
	KindInternal ErrorKind = "internal"
)

// Error is the engine's structured error. Kind carries the taxonomy tag,
// Err the wrapped cause (may be nil).
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error wrapping a cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from err. Context errors map to Timeout and
// Cancelled; everything else unclassified maps to Internal. Nil yields "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var h *ErrHTTP
	if errors.As(err, &h) {
		return KindUpstreamFailure
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// ErrHTTP is returned by HTTP-backed gateways and service clients when the
// upstream responds non-2xx. RetryAfter carries the parsed Retry-After
// header, zero when absent.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, accepting both the
// delta-seconds and the HTTP-date form. Returns 0 for anything unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
