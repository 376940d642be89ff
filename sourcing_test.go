package cadre

import (
	"context"
	"testing"
)

func sourcingTask(taskType string, input Payload) AgentTask {
	return AgentTask{ID: NewID(), Type: taskType, Input: input}
}

func resultCandidates(t *testing.T, out Payload) []Candidate {
	t.Helper()
	cs, ok := out["candidates"].([]Candidate)
	if !ok {
		t.Fatalf("output candidates have type %T, want []Candidate", out["candidates"])
	}
	return cs
}

func TestSourcingBooleanGeneration(t *testing.T) {
	agent := NewSourcingAgent(nil, Services{})
	res := agent.ProcessTask(context.Background(), sourcingTask(TaskBooleanGeneration, Payload{
		"titles":   []string{"Backend Engineer", "SRE"},
		"skills":   []string{"go"},
		"location": "Berlin",
	}))

	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Error)
	}
	want := `("Backend Engineer" OR SRE) AND go AND Berlin`
	if got := res.Output.String("boolean"); got != want {
		t.Errorf("boolean = %q, want %q", got, want)
	}
}

func TestSourcingBooleanGenerationEmptyCriteria(t *testing.T) {
	agent := NewSourcingAgent(nil, Services{})
	res := agent.ProcessTask(context.Background(), sourcingTask(TaskBooleanGeneration, Payload{}))

	if res.Status != ResultFailure || res.ErrorKind != KindValidation {
		t.Fatalf("result = (%s, %s), want (failure, validation_error)", res.Status, res.ErrorKind)
	}
}

func TestSourcingCriteriaFromNestedPayload(t *testing.T) {
	c := criteriaFromPayload(Payload{
		"criteria": Payload{"titles": []string{"Engineer"}, "location": "Remote"},
	})
	if len(c.Titles) != 1 || c.Titles[0] != "Engineer" || c.Location != "Remote" {
		t.Errorf("nested criteria not read: %+v", c)
	}
}

func TestSourcingSearchFansOutAndDedupes(t *testing.T) {
	svc := Services{Search: map[string]SearchClient{
		"github": &mockSearch{name: "github", results: []Candidate{
			{Name: "Ada Lovelace", Company: "ACME", Title: "Engineer", Skills: []string{"go"}},
			{Name: "Grace Hopper", Company: "Navy"},
		}},
		// Same person with whitespace and case noise, extra skill.
		"linkedin": &mockSearch{name: "linkedin", results: []Candidate{
			{Name: "  ada   LOVELACE ", Company: "acme", Location: "London", Skills: []string{"Go", "rust"}},
		}},
	}}
	agent := NewSourcingAgent(nil, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskCandidateSearch, Payload{
		"keywords": []string{"go"},
	}))
	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Error)
	}

	cs := resultCandidates(t, res.Output)
	if len(cs) != 2 {
		t.Fatalf("got %d candidates, want 2 after dedupe: %+v", len(cs), cs)
	}
	var ada Candidate
	for _, c := range cs {
		if normalizeName(c.Name) == "ada lovelace" {
			ada = c
		}
	}
	// The first occurrence wins, later duplicates fill gaps.
	if ada.Location != "London" {
		t.Errorf("merged location = %q, want London", ada.Location)
	}
	if len(ada.Skills) != 2 {
		t.Errorf("merged skills = %v, want [go rust]", ada.Skills)
	}
	for _, c := range cs {
		if c.ID == "" || c.Platform == "" {
			t.Errorf("candidate %q missing id or platform: %+v", c.Name, c)
		}
	}
}

func TestSourcingSearchToleratesPartialFailure(t *testing.T) {
	svc := Services{Search: map[string]SearchClient{
		"github":   &mockSearch{name: "github", err: errBoom},
		"linkedin": &mockSearch{name: "linkedin", results: []Candidate{{Name: "Ada"}}},
	}}
	agent := NewSourcingAgent(nil, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskCandidateSearch, Payload{
		"keywords": []string{"go"},
	}))
	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success despite one failing platform", res.Status, res.Error)
	}
	if got := res.Output.Int("count"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestSourcingSearchAllPlatformsFail(t *testing.T) {
	svc := Services{Search: map[string]SearchClient{
		"github":   &mockSearch{name: "github", err: errBoom},
		"linkedin": &mockSearch{name: "linkedin", err: errBoom},
	}}
	agent := NewSourcingAgent(nil, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskCandidateSearch, Payload{
		"keywords": []string{"go"},
	}))
	if res.Status != ResultFailure || res.ErrorKind != KindUpstreamFailure {
		t.Fatalf("result = (%s, %s), want (failure, upstream_failure)", res.Status, res.ErrorKind)
	}
}

func TestSourcingSearchRestrictsPlatforms(t *testing.T) {
	svc := Services{Search: map[string]SearchClient{
		"github":   &mockSearch{name: "github", results: []Candidate{{Name: "Ada"}}},
		"linkedin": &mockSearch{name: "linkedin", results: []Candidate{{Name: "Grace"}}},
	}}
	agent := NewSourcingAgent(nil, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskCandidateSearch, Payload{
		"keywords":  []string{"go"},
		"platforms": []string{"github"},
	}))
	cs := resultCandidates(t, res.Output)
	if len(cs) != 1 || cs[0].Platform != "github" {
		t.Errorf("restricted search returned %+v, want only the github result", cs)
	}
}

func TestSourcingSearchNoPlatformsConfigured(t *testing.T) {
	agent := NewSourcingAgent(nil, Services{})
	res := agent.ProcessTask(context.Background(), sourcingTask(TaskCandidateSearch, Payload{
		"keywords": []string{"go"},
	}))
	if res.ErrorKind != KindValidation {
		t.Fatalf("error kind = %q, want validation_error", res.ErrorKind)
	}
}

func TestSourcingPipelineRanksAndCuts(t *testing.T) {
	gw := &scriptedGateway{replies: []Payload{
		{"scores": Payload{"c1": 40.0, "c2": 95.0, "c3": 70.0}},
	}}
	svc := Services{Search: map[string]SearchClient{
		"github": &mockSearch{name: "github", results: []Candidate{
			{ID: "c1", Name: "Low"},
			{ID: "c2", Name: "High"},
			{ID: "c3", Name: "Mid"},
		}},
	}}
	agent := NewSourcingAgent(gw, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskSourcing, Payload{
		"titles": []string{"Engineer"},
		"limit":  2,
	}))
	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Error)
	}

	cs := resultCandidates(t, res.Output)
	if len(cs) != 2 {
		t.Fatalf("got %d candidates, want limit cut to 2", len(cs))
	}
	if cs[0].ID != "c2" || cs[1].ID != "c3" {
		t.Errorf("rank order = [%s %s], want [c2 c3]", cs[0].ID, cs[1].ID)
	}
	if cs[0].Score != 95.0 {
		t.Errorf("top score = %v, want 95", cs[0].Score)
	}
	// Criteria came from the input, so the gateway was only called for ranking.
	if gw.callCount() != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.callCount())
	}
}

func TestSourcingPipelineExtractsCriteriaFromJobDescription(t *testing.T) {
	gw := &scriptedGateway{replies: []Payload{
		{"titles": []string{"Engineer"}, "skills": []string{"go"}},
		{"scores": Payload{}},
	}}
	svc := Services{Search: map[string]SearchClient{
		"github": &mockSearch{name: "github", results: []Candidate{{ID: "c1", Name: "Ada"}}},
	}}
	agent := NewSourcingAgent(gw, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskSourcing, Payload{
		"job_description": "We need a Go engineer.",
	}))
	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Error)
	}
	if gw.callCount() != 2 {
		t.Fatalf("gateway calls = %d, want 2 (extract, rank)", gw.callCount())
	}
	if gw.prompts[0] != promptExtractCriteria {
		t.Errorf("first prompt = %q, want criteria extraction", gw.prompts[0])
	}
}

func TestSourcingPipelineExtractsFromDocument(t *testing.T) {
	gw := &scriptedGateway{replies: []Payload{
		{"titles": []string{"Engineer"}},
		{"scores": Payload{}},
	}}
	svc := Services{
		Search:  map[string]SearchClient{"github": &mockSearch{name: "github"}},
		Resumes: &mockResumes{text: "Senior Go Engineer wanted"},
	}
	agent := NewSourcingAgent(gw, svc)

	res := agent.ProcessTask(context.Background(), sourcingTask(TaskSourcing, Payload{
		"document": []byte("%PDF-1.4 ..."),
	}))
	if res.Status != ResultSuccess {
		t.Fatalf("status = %q (%s), want success", res.Status, res.Error)
	}
}

func TestSourcingPipelineNothingToWorkWith(t *testing.T) {
	agent := NewSourcingAgent(nil, Services{
		Search: map[string]SearchClient{"github": &mockSearch{name: "github"}},
	})
	res := agent.ProcessTask(context.Background(), sourcingTask(TaskSourcing, Payload{}))
	if res.ErrorKind != KindValidation {
		t.Fatalf("error kind = %q, want validation_error", res.ErrorKind)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ada Lovelace", "ada lovelace"},
		{"  ada   LOVELACE ", "ada lovelace"},
		{"ＡＤＡ Lovelace", "ada lovelace"}, // fullwidth forms fold under NFKC
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
