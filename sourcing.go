package cadre

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Task types handled by the sourcing agent.
const (
	TaskSourcing          = "sourcing"
	TaskCandidateSearch   = "candidate_search"
	TaskBooleanGeneration = "boolean_generation"
)

// SearchCriteria is the structured form of a job description, extracted by
// the model gateway or supplied directly in the task input.
type SearchCriteria struct {
	Titles    []string
	Skills    []string
	Keywords  []string
	Location  string
	Seniority string
}

func (c SearchCriteria) empty() bool {
	return len(c.Titles) == 0 && len(c.Skills) == 0 && len(c.Keywords) == 0
}

// SourcingAgent finds candidates: it parses a job description into search
// criteria, builds a boolean query, fans out across the configured search
// platforms, deduplicates, and ranks the merged results.
type SourcingAgent struct {
	*BaseAgent
	gw  ModelGateway
	svc Services
}

// NewSourcingAgent creates a sourcing agent backed by the given gateway and
// services. A nil gateway disables criteria extraction and ranking; searches
// then run on the criteria provided in the task input, in platform order.
func NewSourcingAgent(gw ModelGateway, svc Services, opts ...AgentOption) *SourcingAgent {
	a := &SourcingAgent{gw: gw, svc: svc}
	caps := []AgentCapability{
		{Name: TaskSourcing, Description: "full sourcing pipeline: job description to ranked candidates"},
		{Name: TaskCandidateSearch, Description: "fan-out candidate search across platforms"},
		{Name: TaskBooleanGeneration, Description: "boolean search string from criteria"},
	}
	a.BaseAgent = NewBaseAgent(AgentSourcing, caps,
		[]string{TaskSourcing, TaskCandidateSearch, TaskBooleanGeneration},
		a.run, opts...)
	return a
}

func (a *SourcingAgent) run(ctx context.Context, task AgentTask) (Payload, error) {
	switch task.Type {
	case TaskBooleanGeneration:
		criteria := criteriaFromPayload(task.Input)
		if criteria.empty() {
			return nil, NewError(KindValidation, "boolean generation needs titles, skills, or keywords")
		}
		return Payload{"boolean": buildBoolean(criteria)}, nil

	case TaskCandidateSearch:
		criteria := criteriaFromPayload(task.Input)
		query := SearchQuery{
			Boolean:  task.Input.String("boolean"),
			Keywords: append(criteria.Keywords, criteria.Skills...),
			Location: criteria.Location,
			Limit:    searchLimit(task.Input),
		}
		if query.Boolean == "" {
			query.Boolean = buildBoolean(criteria)
		}
		candidates, err := a.search(ctx, query, task.Input.Strings("platforms"))
		if err != nil {
			return nil, err
		}
		return Payload{"candidates": candidates, "count": len(candidates), "boolean": query.Boolean}, nil

	case TaskSourcing:
		return a.pipeline(ctx, task)
	}
	return nil, Errorf(KindNotSupported, "unexpected task type %q", task.Type)
}

// pipeline runs the full flow: extract criteria, build the boolean, search,
// dedupe, rank, and cut to the requested limit.
func (a *SourcingAgent) pipeline(ctx context.Context, task AgentTask) (Payload, error) {
	criteria, err := a.resolveCriteria(ctx, task)
	if err != nil {
		return nil, err
	}
	boolean := buildBoolean(criteria)
	limit := searchLimit(task.Input)

	query := SearchQuery{
		Boolean:  boolean,
		Keywords: append(criteria.Keywords, criteria.Skills...),
		Location: criteria.Location,
		Limit:    limit,
	}
	candidates, err := a.search(ctx, query, task.Input.Strings("platforms"))
	if err != nil {
		return nil, err
	}

	candidates, err = a.rank(ctx, criteria, candidates, task.Context)
	if err != nil {
		return nil, err
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return Payload{
		"candidates": candidates,
		"count":      len(candidates),
		"boolean":    boolean,
	}, nil
}

// resolveCriteria prefers criteria supplied in the input; otherwise it
// extracts them from the job description via the gateway. A document is
// first run through the resume extractor.
func (a *SourcingAgent) resolveCriteria(ctx context.Context, task AgentTask) (SearchCriteria, error) {
	if criteria := criteriaFromPayload(task.Input); !criteria.empty() {
		return criteria, nil
	}

	jd := task.Input.String("job_description")
	if jd == "" {
		doc, ok := task.Input["document"].([]byte)
		if !ok || a.svc.Resumes == nil {
			return SearchCriteria{}, NewError(KindValidation, "sourcing needs criteria, a job description, or a document")
		}
		text, err := a.svc.Resumes.ExtractText(doc)
		if err != nil {
			return SearchCriteria{}, WrapError(KindValidation, "unreadable job description document", err)
		}
		jd = text
	}

	if a.gw == nil {
		return SearchCriteria{}, NewError(KindValidation, "criteria extraction requires a model gateway")
	}
	out, err := a.gw.Call(ctx, promptExtractCriteria, Payload{"job_description": jd}, task.Context)
	if err != nil {
		return SearchCriteria{}, err
	}
	criteria := criteriaFromPayload(out)
	if criteria.empty() {
		return SearchCriteria{}, NewError(KindUpstreamFailure, "gateway returned no usable criteria")
	}
	return criteria, nil
}

const promptExtractCriteria = "Extract search criteria (titles, skills, keywords, location, seniority) from this job description."
const promptRankCandidates = "Score each candidate 0-100 for fit against the criteria. Return scores keyed by candidate id."

// search fans out across platforms concurrently and merges deduplicated
// results. Individual platform errors are tolerated; only a total failure
// surfaces as an error.
func (a *SourcingAgent) search(ctx context.Context, query SearchQuery, platforms []string) ([]Candidate, error) {
	clients := a.selectClients(platforms)
	if len(clients) == 0 {
		return nil, NewError(KindValidation, "no search platforms configured")
	}

	var (
		mu       sync.Mutex
		found    []Candidate
		failures int
		lastErr  error
		wg       sync.WaitGroup
	)
	for _, client := range clients {
		wg.Add(1)
		go func(client SearchClient) {
			defer wg.Done()
			results, err := client.FindCandidates(ctx, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastErr = err
				a.logger.Warn("platform search failed", "platform", client.Name(), "error", err)
				return
			}
			for i := range results {
				if results[i].Platform == "" {
					results[i].Platform = client.Name()
				}
				if results[i].ID == "" {
					results[i].ID = NewID()
				}
			}
			found = append(found, results...)
		}(client)
	}
	wg.Wait()

	if failures == len(clients) {
		return nil, WrapError(KindUpstreamFailure, "every search platform failed", lastErr)
	}
	return dedupeCandidates(found), nil
}

// selectClients returns the configured clients, restricted to the named
// platforms when the task provides any, in stable name order.
func (a *SourcingAgent) selectClients(platforms []string) []SearchClient {
	wanted := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		wanted[p] = true
	}
	names := make([]string, 0, len(a.svc.Search))
	for name := range a.svc.Search {
		if len(wanted) == 0 || wanted[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]SearchClient, 0, len(names))
	for _, name := range names {
		out = append(out, a.svc.Search[name])
	}
	return out
}

// rank scores candidates against the criteria via the gateway and sorts
// descending. Without a gateway the platform order is kept.
func (a *SourcingAgent) rank(ctx context.Context, criteria SearchCriteria, candidates []Candidate, actx AgentContext) ([]Candidate, error) {
	if a.gw == nil || len(candidates) == 0 {
		return candidates, nil
	}
	summary := make([]Payload, len(candidates))
	for i, c := range candidates {
		summary[i] = Payload{
			"id":     c.ID,
			"name":   c.Name,
			"title":  c.Title,
			"skills": c.Skills,
		}
	}
	out, err := a.gw.Call(ctx, promptRankCandidates, Payload{
		"criteria": Payload{
			"titles":    criteria.Titles,
			"skills":    criteria.Skills,
			"keywords":  criteria.Keywords,
			"seniority": criteria.Seniority,
		},
		"candidates": summary,
	}, actx)
	if err != nil {
		return nil, err
	}

	scores := out.Map("scores")
	for i := range candidates {
		candidates[i].Score = scores.Float(candidates[i].ID)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// buildBoolean renders criteria as a boolean search string:
// OR within a facet, AND across facets.
func buildBoolean(c SearchCriteria) string {
	var groups []string
	if g := orGroup(c.Titles); g != "" {
		groups = append(groups, g)
	}
	if g := orGroup(c.Skills); g != "" {
		groups = append(groups, g)
	}
	if g := orGroup(c.Keywords); g != "" {
		groups = append(groups, g)
	}
	if c.Location != "" {
		groups = append(groups, quoteTerm(c.Location))
	}
	return strings.Join(groups, " AND ")
}

func orGroup(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, quoteTerm(t))
		}
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

func quoteTerm(t string) string {
	if strings.ContainsRune(t, ' ') {
		return `"` + t + `"`
	}
	return t
}

// dedupeCandidates merges candidates that refer to the same person, keyed by
// Unicode-normalized name plus company. The first occurrence wins; later
// duplicates contribute missing fields and extra skills.
func dedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[string]int, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		key := normalizeName(c.Name) + "|" + normalizeName(c.Company)
		if i, ok := seen[key]; ok {
			out[i] = mergeCandidate(out[i], c)
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

// normalizeName folds a person or company name to a comparison key:
// NFKC normalization, lower case, collapsed whitespace.
func normalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

func mergeCandidate(dst, src Candidate) Candidate {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Location == "" {
		dst.Location = src.Location
	}
	if dst.ProfileURL == "" {
		dst.ProfileURL = src.ProfileURL
	}
	if dst.Contact == nil {
		dst.Contact = src.Contact
	}
	have := make(map[string]bool, len(dst.Skills))
	for _, s := range dst.Skills {
		have[normalizeName(s)] = true
	}
	for _, s := range src.Skills {
		if !have[normalizeName(s)] {
			dst.Skills = append(dst.Skills, s)
		}
	}
	return dst
}

// criteriaFromPayload reads criteria fields from a payload, looking at the
// top level first and falling back to a nested "criteria" object.
func criteriaFromPayload(p Payload) SearchCriteria {
	c := SearchCriteria{
		Titles:    p.Strings("titles"),
		Skills:    p.Strings("skills"),
		Keywords:  p.Strings("keywords"),
		Location:  p.String("location"),
		Seniority: p.String("seniority"),
	}
	if c.empty() {
		if m := p.Map("criteria"); m != nil {
			return criteriaFromPayload(m)
		}
	}
	return c
}

// searchLimit reads the candidate limit from the input, default 25.
func searchLimit(p Payload) int {
	if n := p.Int("limit"); n > 0 {
		return n
	}
	return 25
}
