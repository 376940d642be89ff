// Package httpgw implements cadre.ModelGateway over a JSON-speaking HTTP
// completion endpoint. It works with any backend that accepts a prompt plus
// a structured payload and answers with a JSON object.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	cadre "github.com/cadrehq/cadre"
)

// Gateway implements cadre.ModelGateway against an HTTP endpoint.
// Non-2xx responses surface as *cadre.ErrHTTP so the retry wrapper can
// classify 429/503 as transient.
type Gateway struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client (default: http.DefaultClient semantics
// with no timeout; pass a client with a timeout for production use).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithLogger sets a structured logger for request/response debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway. baseURL is the API base (the /v1/complete path is
// appended automatically); model names the backend model to invoke.
func New(baseURL, apiKey, model string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ cadre.ModelGateway = (*Gateway)(nil)

// request is the wire format sent to the completion endpoint.
type request struct {
	Model     string        `json:"model"`
	Prompt    string        `json:"prompt"`
	Payload   cadre.Payload `json:"payload,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Overrides cadre.Payload `json:"overrides,omitempty"`
}

func (g *Gateway) Call(ctx context.Context, prompt string, payload cadre.Payload, actx cadre.AgentContext) (cadre.Payload, error) {
	model := g.model
	if v := actx.Overrides.String("model"); v != "" {
		model = v
	}
	body, err := json.Marshal(request{
		Model:     model,
		Prompt:    prompt,
		Payload:   payload,
		UserID:    actx.UserID,
		SessionID: actx.SessionID,
		Overrides: actx.Overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := g.baseURL + "/v1/complete"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &cadre.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(raw),
			RetryAfter: cadre.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out cadre.Payload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if g.logger != nil {
		g.logger.Debug("gateway call completed", "model", model, "status", resp.StatusCode)
	}
	return out, nil
}
