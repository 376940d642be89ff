// Package nymeria implements cadre.EnrichmentClient against the Nymeria
// contact discovery API.
package nymeria

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cadre "github.com/cadrehq/cadre"
)

const defaultBaseURL = "https://www.nymeria.io/api/v4"

// Client implements cadre.EnrichmentClient over the Nymeria HTTP API.
// Non-2xx responses surface as *cadre.ErrHTTP so callers can treat 429/503
// as transient.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base, for tests and proxies.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default client (15-second timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// New creates a Client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ cadre.EnrichmentClient = (*Client)(nil)

// enrichResponse is the subset of the Nymeria person response we consume.
type enrichResponse struct {
	Data struct {
		Emails []struct {
			Address string `json:"address"`
			Type    string `json:"type"`
		} `json:"emails"`
		PhoneNumbers []struct {
			Number string `json:"number"`
		} `json:"phone_numbers"`
		LinkedIn string `json:"linkedin_url"`
	} `json:"data"`
}

// EnrichPerson looks up contact details by name plus company or domain.
func (c *Client) EnrichPerson(ctx context.Context, name, company, domain string) (cadre.ContactInfo, error) {
	body := map[string]string{"name": name}
	if company != "" {
		body["company"] = company
	}
	if domain != "" {
		body["domain"] = domain
	}

	var resp enrichResponse
	if err := c.post(ctx, "/person/enrich", body, &resp); err != nil {
		return cadre.ContactInfo{}, err
	}

	var info cadre.ContactInfo
	for _, e := range resp.Data.Emails {
		if info.Email == "" || e.Type == "professional" {
			info.Email = e.Address
		}
	}
	if len(resp.Data.PhoneNumbers) > 0 {
		info.Phone = resp.Data.PhoneNumbers[0].Number
	}
	info.LinkedIn = resp.Data.LinkedIn
	return info, nil
}

// VerifyEmail checks deliverability of an address.
func (c *Client) VerifyEmail(ctx context.Context, addr string) (bool, error) {
	var resp struct {
		Data struct {
			Result string `json:"result"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/email/verify", map[string]string{"email": addr}, &resp); err != nil {
		return false, err
	}
	return resp.Data.Result == "valid" || resp.Data.Result == "catchall", nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &cadre.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: cadre.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
