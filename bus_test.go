package cadre

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"
)

func TestBusPublishAppendsToLog(t *testing.T) {
	bus := NewMessageBus()
	msg := NewMessage("a", "b", MessageRequest, "do_thing", Payload{"k": "v"})
	bus.Publish(msg)

	log := bus.Log(MessageFilter{})
	if len(log) != 1 {
		t.Fatalf("log length = %d, want 1", len(log))
	}
	if log[0].ID != msg.ID {
		t.Errorf("log[0].ID = %q, want %q", log[0].ID, msg.ID)
	}
	if bus.Published() != 1 {
		t.Errorf("Published() = %d, want 1", bus.Published())
	}
}

func TestBusLogEvictsOldestAtCapacity(t *testing.T) {
	bus := NewMessageBus(WithMaxLogSize(3))
	for i := 0; i < 5; i++ {
		bus.Publish(NewMessage("a", "b", MessageStatus, fmt.Sprintf("msg-%d", i), nil))
	}

	if bus.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", bus.Len())
	}
	log := bus.Log(MessageFilter{})
	if log[0].Action != "msg-2" || log[2].Action != "msg-4" {
		t.Errorf("log actions = [%s..%s], want [msg-2..msg-4]", log[0].Action, log[2].Action)
	}
	if bus.Published() != 5 {
		t.Errorf("Published() = %d, want 5 (eviction must not affect the total)", bus.Published())
	}
}

func TestBusSubscribeDirectKeys(t *testing.T) {
	tests := []struct {
		pattern string
		want    int
	}{
		{"message", 1},
		{"message:request", 1},
		{"message:alice:bob", 1},
		{"message:response", 0},
		{"message:bob:alice", 0},
	}
	for _, tt := range tests {
		bus := NewMessageBus()
		got := 0
		bus.Subscribe(tt.pattern, func(AgentMessage) { got++ })
		bus.Publish(NewMessage("alice", "bob", MessageRequest, "greet", nil))
		if got != tt.want {
			t.Errorf("pattern %q: handler called %d times, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestBusSubscribeFieldLiterals(t *testing.T) {
	bus := NewMessageBus()
	byAction, byFrom, byTo := 0, 0, 0
	bus.Subscribe("greet", func(AgentMessage) { byAction++ })
	bus.Subscribe("alice", func(AgentMessage) { byFrom++ })
	bus.Subscribe("bob", func(AgentMessage) { byTo++ })

	bus.Publish(NewMessage("alice", "bob", MessageRequest, "greet", nil))

	if byAction != 1 || byFrom != 1 || byTo != 1 {
		t.Errorf("handlers called (action=%d from=%d to=%d), want all 1", byAction, byFrom, byTo)
	}
}

func TestBusSubscribeRegexp(t *testing.T) {
	bus := NewMessageBus()
	var actions []string
	bus.SubscribeRegexp(regexp.MustCompile(`^task:`), func(msg AgentMessage) {
		actions = append(actions, msg.Action)
	})

	bus.Publish(NewMessage("a", "b", MessageStatus, "task:start", nil))
	bus.Publish(NewMessage("a", "b", MessageStatus, "heartbeat", nil))
	bus.Publish(NewMessage("a", "b", MessageStatus, "task:complete", nil))

	if len(actions) != 2 {
		t.Fatalf("matched %d messages, want 2: %v", len(actions), actions)
	}
}

func TestBusUnsubscribeIdempotent(t *testing.T) {
	bus := NewMessageBus()
	got := 0
	id := bus.Subscribe("message", func(AgentMessage) { got++ })

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Unsubscribe("no-such-id")

	bus.Publish(NewMessage("a", "b", MessageStatus, "x", nil))
	if got != 0 {
		t.Errorf("handler called %d times after unsubscribe, want 0", got)
	}
}

func TestBusOrderingPerPublisher(t *testing.T) {
	bus := NewMessageBus()
	var order []string
	bus.Subscribe("message", func(msg AgentMessage) {
		order = append(order, msg.Action)
	})

	for i := 0; i < 10; i++ {
		bus.Publish(NewMessage("a", "b", MessageStatus, fmt.Sprintf("m%d", i), nil))
	}
	for i, action := range order {
		if want := fmt.Sprintf("m%d", i); action != want {
			t.Fatalf("order[%d] = %q, want %q", i, action, want)
		}
	}
}

func TestBusHandlerPanicRecovered(t *testing.T) {
	bus := NewMessageBus()
	bus.Subscribe("message", func(AgentMessage) { panic("broken subscriber") })
	after := 0
	bus.Subscribe("message", func(AgentMessage) { after++ })

	bus.Publish(NewMessage("a", "b", MessageStatus, "x", nil))

	if after != 1 {
		t.Errorf("later handler called %d times, want 1 (panic must not stop dispatch)", after)
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}

func TestBusRouteRules(t *testing.T) {
	bus := NewMessageBus()
	var routed []RouteRule
	bus.SetRouteHandler(func(_ AgentMessage, rule RouteRule) {
		routed = append(routed, rule)
	})
	bus.AddRoute("alice", RouteRule{To: "bob", Action: "greet"})
	bus.AddRoute("alice", RouteRule{Type: MessageError}) // wildcard To and Action

	bus.Publish(NewMessage("alice", "bob", MessageRequest, "greet", nil))
	bus.Publish(NewMessage("alice", "carol", MessageError, "oops", nil))
	bus.Publish(NewMessage("someone", "bob", MessageRequest, "greet", nil))

	if len(routed) != 2 {
		t.Fatalf("routed %d messages, want 2", len(routed))
	}
	if routed[0].To != "bob" {
		t.Errorf("routed[0].To = %q, want bob", routed[0].To)
	}
	if routed[1].Type != MessageError {
		t.Errorf("routed[1].Type = %q, want error", routed[1].Type)
	}
}

func TestBusRouteSkipsForwardedMessages(t *testing.T) {
	bus := NewMessageBus()
	routed := 0
	bus.SetRouteHandler(func(AgentMessage, RouteRule) { routed++ })
	bus.AddRoute("alice", RouteRule{Action: "greet"})

	fwd := NewMessage("alice", "bob", MessageRequest, "greet", nil)
	fwd.Forwarded = true
	bus.Publish(fwd)
	bus.Publish(NewMessage("alice", "bob", MessageRequest, "greet", nil))

	if routed != 1 {
		t.Errorf("routed %d messages, want 1 (forwarded copies must not route again)", routed)
	}
}

func TestBusLogFilterConjunctive(t *testing.T) {
	bus := NewMessageBus()
	bus.Publish(NewMessage("alice", "bob", MessageRequest, "greet", nil))
	bus.Publish(NewMessage("alice", "carol", MessageRequest, "greet", nil))
	bus.Publish(NewMessage("bob", "alice", MessageResponse, "greet", nil))

	got := bus.Log(MessageFilter{From: "alice", To: "bob"})
	if len(got) != 1 {
		t.Fatalf("filtered length = %d, want 1", len(got))
	}
	if got[0].To != "bob" {
		t.Errorf("got To = %q, want bob", got[0].To)
	}
}

func TestBusLogFilterLimitKeepsNewest(t *testing.T) {
	bus := NewMessageBus()
	for i := 0; i < 5; i++ {
		bus.Publish(NewMessage("a", "b", MessageStatus, fmt.Sprintf("m%d", i), nil))
	}

	got := bus.Log(MessageFilter{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("limited length = %d, want 2", len(got))
	}
	if got[0].Action != "m3" || got[1].Action != "m4" {
		t.Errorf("limited actions = [%s %s], want [m3 m4]", got[0].Action, got[1].Action)
	}
}

func TestBusLogFilterSince(t *testing.T) {
	bus := NewMessageBus()
	old := NewMessage("a", "b", MessageStatus, "old", nil)
	old.Timestamp = time.Now().Add(-time.Hour)
	bus.Publish(old)
	bus.Publish(NewMessage("a", "b", MessageStatus, "new", nil))

	got := bus.Log(MessageFilter{Since: time.Now().Add(-time.Minute)})
	if len(got) != 1 || got[0].Action != "new" {
		t.Fatalf("since filter returned %d messages, want just the new one", len(got))
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewMessageBus(WithMaxLogSize(100))
	total := 0
	bus.Subscribe("message", func(AgentMessage) { total++ })

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				bus.Publish(NewMessage(fmt.Sprintf("pub-%d", p), "b", MessageStatus, "x", nil))
			}
		}(p)
	}
	wg.Wait()

	if total != 100 {
		t.Errorf("handler called %d times, want 100", total)
	}
	if bus.Published() != 100 {
		t.Errorf("Published() = %d, want 100", bus.Published())
	}
}

func TestBusClear(t *testing.T) {
	bus := NewMessageBus()
	calls := 0
	bus.Subscribe("message", func(AgentMessage) { calls++ })
	bus.Publish(NewMessage("a", "b", MessageStatus, "x", nil))
	bus.Clear()

	if bus.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", bus.Len())
	}
	bus.Publish(NewMessage("a", "b", MessageStatus, "y", nil))
	if calls != 1 {
		t.Errorf("handler called %d times, want 1 (subscription must not survive Clear)", calls)
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}
