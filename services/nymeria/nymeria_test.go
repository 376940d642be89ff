package nymeria

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	cadre "github.com/cadrehq/cadre"
)

func TestEnrichPersonPrefersProfessionalEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/person/enrich" {
			t.Errorf("path = %q, want /person/enrich", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "k1" {
			t.Errorf("api key header = %q", key)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Ada Lovelace" || body["company"] != "ACME" {
			t.Errorf("request body = %v", body)
		}
		_, _ = w.Write([]byte(`{"data": {
			"emails": [
				{"address": "ada@gmail.com", "type": "personal"},
				{"address": "ada@acme.io", "type": "professional"}
			],
			"phone_numbers": [{"number": "+44 555"}],
			"linkedin_url": "https://linkedin.com/in/ada"
		}}`))
	}))
	defer srv.Close()

	c := New("k1", WithBaseURL(srv.URL))
	info, err := c.EnrichPerson(context.Background(), "Ada Lovelace", "ACME", "")
	if err != nil {
		t.Fatalf("EnrichPerson() error: %v", err)
	}
	if info.Email != "ada@acme.io" {
		t.Errorf("email = %q, want the professional address", info.Email)
	}
	if info.Phone != "+44 555" || info.LinkedIn != "https://linkedin.com/in/ada" {
		t.Errorf("contact = %+v", info)
	}
}

func TestEnrichPersonFallsBackToFirstEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"emails": [{"address": "ada@gmail.com", "type": "personal"}]}}`))
	}))
	defer srv.Close()

	c := New("k1", WithBaseURL(srv.URL))
	info, err := c.EnrichPerson(context.Background(), "Ada", "", "")
	if err != nil {
		t.Fatalf("EnrichPerson() error: %v", err)
	}
	if info.Email != "ada@gmail.com" {
		t.Errorf("email = %q, want the only address", info.Email)
	}
}

func TestVerifyEmail(t *testing.T) {
	tests := []struct {
		result string
		want   bool
	}{
		{"valid", true},
		{"catchall", true},
		{"invalid", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/email/verify" {
				t.Errorf("path = %q, want /email/verify", r.URL.Path)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"result": tt.result}})
		}))
		c := New("k1", WithBaseURL(srv.URL))
		got, err := c.VerifyEmail(context.Background(), "ada@acme.io")
		srv.Close()
		if err != nil {
			t.Fatalf("VerifyEmail(%s) error: %v", tt.result, err)
		}
		if got != tt.want {
			t.Errorf("VerifyEmail result %q = %v, want %v", tt.result, got, tt.want)
		}
	}
}

func TestNon2xxBecomesErrHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("k1", WithBaseURL(srv.URL))
	_, err := c.EnrichPerson(context.Background(), "Ada", "", "")

	var httpErr *cadre.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v (%T), want *cadre.ErrHTTP", err, err)
	}
	if httpErr.Status != 429 || httpErr.RetryAfter == 0 {
		t.Errorf("ErrHTTP = %+v, want 429 with Retry-After", httpErr)
	}
}
