package profilepage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cadre "github.com/cadrehq/cadre"
)

func TestFetchProfileExtractsReadableText(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Ada Lovelace</title></head><body>
	<article>
	<h1>Ada Lovelace</h1>
	<p>Analytical engine programmer with a decade of experience in symbolic
	computation. Wrote the first published algorithm intended for execution
	by a machine and collaborated closely with Charles Babbage.</p>
	<p>Interested in mathematics, mechanical computing, and poetry.</p>
	</article>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "CadreBot") {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	text, err := New().FetchProfile(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchProfile() error: %v", err)
	}
	if !strings.Contains(text, "Analytical engine programmer") {
		t.Errorf("extracted text missing body content:\n%s", text)
	}
	if strings.Contains(text, "<p>") {
		t.Errorf("extracted text contains markup:\n%s", text)
	}
}

func TestFetchProfileErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "profile gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().FetchProfile(context.Background(), srv.URL)
	var httpErr *cadre.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v (%T), want *cadre.ErrHTTP", err, err)
	}
	if httpErr.Status != 404 {
		t.Errorf("status = %d, want 404", httpErr.Status)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>hello <b>world</b></p>", "hello world"},
		{"plain text", "plain text"},
		{"a\n\n  b\t c", "a b c"},
		{"<div><span></span></div>", ""},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
