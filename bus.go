package cadre

import (
	"log/slog"
	"regexp"
	"sync"
	"time"
)

// DefaultMaxLogSize is the bus log capacity when none is configured.
const DefaultMaxLogSize = 1000

// Handler receives messages matched by a subscription. Handlers run
// synchronously on the publisher's goroutine and must not call Publish
// directly; republish from a new goroutine instead. Panics are recovered
// and logged, never propagated into Publish.
type Handler func(msg AgentMessage)

// RouteRule forwards published messages from a given sender. Empty fields
// are wildcards; a rule with To set to Broadcast triggers broadcast delivery.
// Rules never apply to forwarded copies, so a rule fires at most once per
// original publish.
type RouteRule struct {
	To     string
	Action string
	Type   MessageType
}

// matches reports whether the rule applies to msg (From already checked).
func (r RouteRule) matches(msg AgentMessage) bool {
	if r.To != "" && r.To != msg.To && r.To != Broadcast {
		return false
	}
	if r.Action != "" && r.Action != msg.Action {
		return false
	}
	if r.Type != "" && r.Type != msg.Type {
		return false
	}
	return true
}

// RouteHandler is invoked for every published message matched by a routing
// rule. The orchestrator installs one to deliver forwarded messages.
type RouteHandler func(msg AgentMessage, rule RouteRule)

// MessageFilter selects log entries. All set fields must match (conjunctive).
type MessageFilter struct {
	From   string
	To     string
	Action string
	Type   MessageType
	// Since excludes messages published before it. Zero means no bound.
	Since time.Time
	// Limit caps the result to the most recent N entries. Zero means all.
	Limit int
}

func (f MessageFilter) matches(msg AgentMessage) bool {
	if f.From != "" && f.From != msg.From {
		return false
	}
	if f.To != "" && f.To != msg.To {
		return false
	}
	if f.Action != "" && f.Action != msg.Action {
		return false
	}
	if f.Type != "" && f.Type != msg.Type {
		return false
	}
	if !f.Since.IsZero() && msg.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// subscription is one registered handler. Exactly one of literal/re is set.
type subscription struct {
	id      string
	literal string
	re      *regexp.Regexp
	handler Handler
}

// matches reports whether the subscription should receive msg.
// Literal patterns match the direct keys ("message", "message:<type>",
// "message:<from>:<to>") or equal the message's action, from, or to.
// Regexp patterns match against action, from, or to.
func (s *subscription) matches(msg AgentMessage) bool {
	if s.re != nil {
		return s.re.MatchString(msg.Action) || s.re.MatchString(msg.From) || s.re.MatchString(msg.To)
	}
	switch s.literal {
	case "message",
		"message:" + string(msg.Type),
		"message:" + msg.From + ":" + msg.To,
		msg.Action, msg.From, msg.To:
		return true
	}
	return false
}

// MessageBus is a synchronous pub/sub fan-out with pattern subscriptions,
// routing rules, and a bounded FIFO message log.
//
// Publish serialises the append-and-notify critical section, so for a single
// publisher every handler observes messages in publish order, and the log
// reflects global publish order.
type MessageBus struct {
	mu       sync.Mutex
	capacity int
	log      []AgentMessage
	subs     map[string]*subscription
	order    []string // subscription ids in registration order
	routes   map[string][]RouteRule
	onRoute  RouteHandler
	count    int64 // total published since construction
	logger   *slog.Logger
}

// BusOption configures a MessageBus.
type BusOption func(*MessageBus)

// WithMaxLogSize sets the bounded log capacity (default 1000). On overflow
// the oldest entry is evicted before append.
func WithMaxLogSize(n int) BusOption {
	return func(b *MessageBus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithBusLogger sets the structured logger for handler errors and evictions.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *MessageBus) { b.logger = l }
}

// NewMessageBus creates a MessageBus.
func NewMessageBus(opts ...BusOption) *MessageBus {
	b := &MessageBus{
		capacity: DefaultMaxLogSize,
		subs:     make(map[string]*subscription),
		routes:   make(map[string][]RouteRule),
		logger:   nopLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends msg to the bounded log, notifies every matching
// subscription in registration order, then applies routing rules.
// The whole sequence runs under the bus lock: per-publisher ordering is
// preserved to every handler, and the log append never races the eviction.
func (b *MessageBus) Publish(msg AgentMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.log) >= b.capacity {
		b.log = b.log[1:]
	}
	b.log = append(b.log, msg)
	b.count++

	for _, id := range b.order {
		sub, ok := b.subs[id]
		if !ok {
			continue
		}
		if sub.matches(msg) {
			b.safeDispatch(sub, msg)
		}
	}

	if msg.Forwarded {
		return
	}
	for _, rule := range b.routes[msg.From] {
		if rule.matches(msg) && b.onRoute != nil {
			b.onRoute(msg, rule)
		}
	}
}

// safeDispatch runs a handler, recovering panics so a broken subscriber
// never breaks Publish.
func (b *MessageBus) safeDispatch(sub *subscription, msg AgentMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked",
				"subscription", sub.id,
				"message_id", msg.ID,
				"panic", r)
		}
	}()
	sub.handler(msg)
}

// Subscribe registers a handler for a literal pattern. The pattern matches
// the direct keys ("message", "message:<type>", "message:<from>:<to>") or
// the message's action, from, or to field. Returns the handler id.
func (b *MessageBus) Subscribe(pattern string, h Handler) string {
	return b.add(&subscription{literal: pattern, handler: h})
}

// SubscribeRegexp registers a handler whose pattern is matched against the
// message's action, from, and to fields. Returns the handler id.
func (b *MessageBus) SubscribeRegexp(re *regexp.Regexp, h Handler) string {
	return b.add(&subscription{re: re, handler: h})
}

func (b *MessageBus) add(sub *subscription) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.id = NewID()
	b.subs[sub.id] = sub
	b.order = append(b.order, sub.id)
	return sub.id
}

// Unsubscribe removes the handler. Idempotent: unknown ids are ignored.
func (b *MessageBus) Unsubscribe(handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, handlerID)
}

// AddRoute registers a routing rule for messages published by fromAgent.
func (b *MessageBus) AddRoute(fromAgent string, rule RouteRule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[fromAgent] = append(b.routes[fromAgent], rule)
}

// SetRouteHandler installs the callback invoked for matched routing rules.
func (b *MessageBus) SetRouteHandler(h RouteHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRoute = h
}

// Log returns a filtered snapshot of the message log in publish order.
func (b *MessageBus) Log(filter MessageFilter) []AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []AgentMessage
	for _, msg := range b.log {
		if filter.matches(msg) {
			out = append(out, msg)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Len returns the current log length (≤ the configured capacity).
func (b *MessageBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

// Published returns the total number of messages published since construction.
func (b *MessageBus) Published() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear drops the log and all subscriptions and routes. Used on shutdown.
func (b *MessageBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
	b.subs = make(map[string]*subscription)
	b.order = nil
	b.routes = make(map[string][]RouteRule)
}
