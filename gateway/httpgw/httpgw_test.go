package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cadre "github.com/cadrehq/cadre"
)

func TestCallSendsRequestAndDecodesResponse(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/complete" {
			t.Errorf("path = %q, want /v1/complete", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-123" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"answer": "yes"})
	}))
	defer srv.Close()

	gw := New(srv.URL, "key-123", "gpt-4o-mini")
	out, err := gw.Call(context.Background(), "extract criteria",
		cadre.Payload{"job_description": "Go engineer"},
		cadre.AgentContext{UserID: "u1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	if out.String("answer") != "yes" {
		t.Errorf("output = %v", out)
	}
	if got.Model != "gpt-4o-mini" || got.Prompt != "extract criteria" {
		t.Errorf("request = %+v", got)
	}
	if got.UserID != "u1" || got.SessionID != "s1" {
		t.Errorf("caller identity not forwarded: %+v", got)
	}
}

func TestCallModelOverride(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	gw := New(srv.URL, "", "gpt-4o-mini")
	_, err := gw.Call(context.Background(), "p", nil,
		cadre.AgentContext{Overrides: cadre.Payload{"model": "gpt-4o"}})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want the override gpt-4o", got.Model)
	}
}

func TestCallNon2xxBecomesErrHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := New(srv.URL, "", "m")
	_, err := gw.Call(context.Background(), "p", nil, cadre.AgentContext{})

	var httpErr *cadre.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v (%T), want *cadre.ErrHTTP", err, err)
	}
	if httpErr.Status != 503 {
		t.Errorf("status = %d, want 503", httpErr.Status)
	}
	if httpErr.Body == "" {
		t.Error("body not captured")
	}
}

func TestCallParsesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gw := New(srv.URL, "", "m")
	_, err := gw.Call(context.Background(), "p", nil, cadre.AgentContext{})

	var httpErr *cadre.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *cadre.ErrHTTP", err)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", httpErr.RetryAfter)
	}
}

func TestCallContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	gw := New(srv.URL, "", "m")
	if _, err := gw.Call(ctx, "p", nil, cadre.AgentContext{}); err == nil {
		t.Fatal("Call() succeeded, want context error")
	}
}
