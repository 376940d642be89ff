package cadre

import "context"

// Candidate is a person surfaced by a sourcing search, progressively filled
// in by enrichment.
type Candidate struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Title    string   `json:"title,omitempty"`
	Company  string   `json:"company,omitempty"`
	Location string   `json:"location,omitempty"`
	// ProfileURL points at the candidate's public profile page.
	ProfileURL string   `json:"profile_url,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	// Platform names the search platform that produced the candidate.
	Platform string `json:"platform,omitempty"`
	// Score is the relevance score assigned during ranking, higher is better.
	Score float64 `json:"score,omitempty"`
	// Contact is filled in by enrichment, nil until then.
	Contact *ContactInfo `json:"contact,omitempty"`
	// ProfileText is readable text extracted from the profile page.
	ProfileText string `json:"profile_text,omitempty"`
}

// ContactInfo is the result of contact discovery for one candidate.
type ContactInfo struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Phone         string `json:"phone,omitempty"`
	LinkedIn      string `json:"linkedin,omitempty"`
}

// SearchQuery is the input to a platform search client.
type SearchQuery struct {
	// Boolean is the boolean search string built by the sourcing agent.
	Boolean string
	// Keywords are the raw criteria keywords, for platforms without
	// boolean support.
	Keywords []string
	// Location optionally restricts results geographically.
	Location string
	// Limit caps the number of returned candidates.
	Limit int
}

// SearchClient searches one candidate platform. Implementations are
// plug-replaceable; the sourcing agent fans out across all configured clients.
type SearchClient interface {
	// Name returns the platform name (e.g. "github", "stackoverflow").
	Name() string
	// FindCandidates runs the query and returns up to query.Limit candidates.
	FindCandidates(ctx context.Context, query SearchQuery) ([]Candidate, error)
}

// EnrichmentClient discovers and verifies contact details for a person.
type EnrichmentClient interface {
	// EnrichPerson looks up contact details by name plus company or domain.
	EnrichPerson(ctx context.Context, name, company, domain string) (ContactInfo, error)
	// VerifyEmail checks deliverability of an address.
	VerifyEmail(ctx context.Context, addr string) (bool, error)
}

// ProfileFetcher retrieves the readable text of a candidate's profile page.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, url string) (string, error)
}

// ResumeExtractor extracts plain text from an uploaded resume or job
// description document.
type ResumeExtractor interface {
	ExtractText(content []byte) (string, error)
}

// Services bundles the external collaborators the concrete agents call.
// Any field may be nil; agents skip the corresponding pipeline stage.
type Services struct {
	// Search maps platform name to its client. The sourcing agent fans out
	// across every entry unless the task restricts platforms.
	Search map[string]SearchClient
	// Enrichment discovers and verifies contact details.
	Enrichment EnrichmentClient
	// Profiles fetches candidate profile pages.
	Profiles ProfileFetcher
	// Resumes extracts text from resume/job-description documents.
	Resumes ResumeExtractor
}
