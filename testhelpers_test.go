package cadre

import (
	"context"
	"errors"
	"sync"
)

// --- Gateway mocks (shared across sourcing_test.go, planning_test.go, gateway_test.go) ---

// scriptedGateway returns canned payloads in order, one per call.
type scriptedGateway struct {
	mu      sync.Mutex
	replies []Payload
	errs    []error
	calls   int
	prompts []string
}

func (g *scriptedGateway) Call(_ context.Context, prompt string, _ Payload, _ AgentContext) (Payload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return Payload{}, nil
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// --- Service mocks (shared across sourcing_test.go, enrichment_test.go) ---

type mockSearch struct {
	name    string
	results []Candidate
	err     error
}

func (m *mockSearch) Name() string { return m.name }

func (m *mockSearch) FindCandidates(_ context.Context, _ SearchQuery) ([]Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Candidate, len(m.results))
	copy(out, m.results)
	return out, nil
}

type mockEnrichment struct {
	mu       sync.Mutex
	contact  ContactInfo
	err      error
	verified bool
	calls    int
}

func (m *mockEnrichment) EnrichPerson(_ context.Context, _, _, _ string) (ContactInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return ContactInfo{}, m.err
	}
	return m.contact, nil
}

func (m *mockEnrichment) VerifyEmail(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.verified, nil
}

type mockProfiles struct {
	text string
	err  error
}

func (m *mockProfiles) FetchProfile(_ context.Context, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

type mockResumes struct {
	text string
	err  error
}

func (m *mockResumes) ExtractText(_ []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

var errBoom = errors.New("boom")

// newEchoAgent builds a BaseAgent of the given type that accepts taskType
// and echoes its input as output.
func newEchoAgent(typ AgentType, taskType string) *BaseAgent {
	return NewBaseAgent(typ, nil, []string{taskType},
		func(_ context.Context, task AgentTask) (Payload, error) {
			return Payload{"echo": task.Input.String("value")}, nil
		})
}
