package cadre

import (
	"context"
)

// Task types handled by the enrichment agent.
const (
	TaskEnrichment        = "enrichment"
	TaskContactDiscovery  = "contact_discovery"
	TaskProfileEnrichment = "profile_enrichment"
)

// progressBatch is how many candidates are processed between progress
// status messages.
const progressBatch = 10

// EnrichmentAgent fills in contact details and profile text for candidates
// produced by sourcing. Each pipeline stage is flag-guarded via the task
// input and skipped when its backing service is absent.
type EnrichmentAgent struct {
	*BaseAgent
	svc Services
}

// NewEnrichmentAgent creates an enrichment agent over the given services.
func NewEnrichmentAgent(svc Services, opts ...AgentOption) *EnrichmentAgent {
	a := &EnrichmentAgent{svc: svc}
	caps := []AgentCapability{
		{Name: TaskEnrichment, Description: "contact discovery, email verification, and profile text for a candidate batch"},
		{Name: TaskContactDiscovery, Description: "contact details for a single person"},
		{Name: TaskProfileEnrichment, Description: "profile page text for candidates with profile URLs"},
	}
	a.BaseAgent = NewBaseAgent(AgentEnrichment, caps,
		[]string{TaskEnrichment, TaskContactDiscovery, TaskProfileEnrichment},
		a.run, opts...)
	return a
}

func (a *EnrichmentAgent) run(ctx context.Context, task AgentTask) (Payload, error) {
	switch task.Type {
	case TaskContactDiscovery:
		return a.discoverOne(ctx, task.Input)
	case TaskProfileEnrichment:
		return a.enrichBatch(ctx, task, enrichFlags{fetchProfiles: true})
	case TaskEnrichment:
		flags := enrichFlags{
			discoverContacts: flagOn(task.Input, "discover_contacts"),
			verifyEmails:     flagOn(task.Input, "verify_emails"),
			fetchProfiles:    flagOn(task.Input, "fetch_profiles"),
		}
		return a.enrichBatch(ctx, task, flags)
	}
	return nil, Errorf(KindNotSupported, "unexpected task type %q", task.Type)
}

// flagOn reads a boolean input flag that defaults to true when absent.
func flagOn(p Payload, key string) bool {
	if _, present := p[key]; !present {
		return true
	}
	return p.Bool(key)
}

type enrichFlags struct {
	discoverContacts bool
	verifyEmails     bool
	fetchProfiles    bool
}

// discoverOne looks up contact details for a single person.
func (a *EnrichmentAgent) discoverOne(ctx context.Context, input Payload) (Payload, error) {
	if a.svc.Enrichment == nil {
		return nil, NewError(KindValidation, "no enrichment client configured")
	}
	name := input.String("name")
	if name == "" {
		return nil, NewError(KindValidation, "contact discovery needs a name")
	}
	contact, err := a.svc.Enrichment.EnrichPerson(ctx, name, input.String("company"), input.String("domain"))
	if err != nil {
		return nil, err
	}
	if contact.Email != "" && flagOn(input, "verify_emails") {
		verified, err := a.svc.Enrichment.VerifyEmail(ctx, contact.Email)
		if err != nil {
			a.logger.Warn("email verification failed", "agent", a.id, "error", err)
		} else {
			contact.EmailVerified = verified
		}
	}
	return Payload{"contact": contact}, nil
}

// enrichBatch runs the flag-guarded pipeline over every candidate in the
// input, emitting a progress status message every ten candidates.
// Per-candidate failures are tolerated and counted; the batch only fails
// when it cannot start at all.
func (a *EnrichmentAgent) enrichBatch(ctx context.Context, task AgentTask, flags enrichFlags) (Payload, error) {
	candidates := candidatesFromPayload(task.Input, "candidates")
	if len(candidates) == 0 {
		return nil, NewError(KindValidation, "no candidates to enrich")
	}
	if flags.discoverContacts && a.svc.Enrichment == nil {
		flags.discoverContacts = false
		flags.verifyEmails = false
	}
	if flags.fetchProfiles && a.svc.Profiles == nil {
		flags.fetchProfiles = false
	}

	var contactsFound, emailsVerified, profilesFetched, errorCount int
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &candidates[i]

		if flags.discoverContacts && c.Contact == nil && c.Name != "" {
			contact, err := a.svc.Enrichment.EnrichPerson(ctx, c.Name, c.Company, "")
			if err != nil {
				errorCount++
				a.logger.Warn("contact discovery failed", "agent", a.id, "candidate", c.ID, "error", err)
			} else if contact != (ContactInfo{}) {
				c.Contact = &contact
				contactsFound++
			}
		}

		if flags.verifyEmails && c.Contact != nil && c.Contact.Email != "" && !c.Contact.EmailVerified {
			verified, err := a.svc.Enrichment.VerifyEmail(ctx, c.Contact.Email)
			if err != nil {
				errorCount++
				a.logger.Warn("email verification failed", "agent", a.id, "candidate", c.ID, "error", err)
			} else if verified {
				c.Contact.EmailVerified = true
				emailsVerified++
			}
		}

		if flags.fetchProfiles && c.ProfileText == "" && c.ProfileURL != "" {
			text, err := a.svc.Profiles.FetchProfile(ctx, c.ProfileURL)
			if err != nil {
				errorCount++
				a.logger.Warn("profile fetch failed", "agent", a.id, "candidate", c.ID, "error", err)
			} else {
				c.ProfileText = text
				profilesFetched++
			}
		}

		if (i+1)%progressBatch == 0 && i+1 < len(candidates) {
			a.SendMessage(OrchestratorID, MessageStatus, "enrichment_progress", Payload{
				"task_id": task.ID,
				"done":    i + 1,
				"total":   len(candidates),
			})
		}
	}

	return Payload{
		"candidates":       candidates,
		"count":            len(candidates),
		"contacts_found":   contactsFound,
		"emails_verified":  emailsVerified,
		"profiles_fetched": profilesFetched,
		"errors":           errorCount,
	}, nil
}

// candidatesFromPayload reads a candidate slice from a payload. Both the
// in-process []Candidate shape and the JSON-decoded []any shape are accepted.
func candidatesFromPayload(p Payload, key string) []Candidate {
	switch v := p[key].(type) {
	case []Candidate:
		out := make([]Candidate, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]Candidate, 0, len(v))
		for _, e := range v {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, candidateFromPayload(Payload(m)))
		}
		return out
	}
	return nil
}

func candidateFromPayload(p Payload) Candidate {
	c := Candidate{
		ID:          p.String("id"),
		Name:        p.String("name"),
		Title:       p.String("title"),
		Company:     p.String("company"),
		Location:    p.String("location"),
		ProfileURL:  p.String("profile_url"),
		Skills:      p.Strings("skills"),
		Platform:    p.String("platform"),
		Score:       p.Float("score"),
		ProfileText: p.String("profile_text"),
	}
	if m := p.Map("contact"); m != nil {
		c.Contact = &ContactInfo{
			Email:         m.String("email"),
			EmailVerified: m.Bool("email_verified"),
			Phone:         m.String("phone"),
			LinkedIn:      m.String("linkedin"),
		}
	}
	return c
}
