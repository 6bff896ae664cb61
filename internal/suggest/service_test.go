package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") == "" {
			t.Error("expected api key header")
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": reply}}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestImprove(t *testing.T) {
	ts := newTestServer(t, "Improved text.")
	defer ts.Close()

	svc := NewService(Config{URL: ts.URL, APIKey: "key"})
	got, err := svc.Improve(context.Background(), "fix teh bug", "professional")
	if err != nil {
		t.Fatalf("Improve() error = %v", err)
	}
	if got != "Improved text." {
		t.Errorf("Improve() = %q", got)
	}
}

func TestImproveRejectsEmptyText(t *testing.T) {
	svc := NewService(Config{APIKey: "key"})
	if _, err := svc.Improve(context.Background(), "   ", "concise"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSummarize(t *testing.T) {
	ts := newTestServer(t, "A short summary.")
	defer ts.Close()

	svc := NewService(Config{URL: ts.URL, APIKey: "key"})
	got, err := svc.Summarize(context.Background(), "Ship login", "Implement the login flow")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "A short summary." {
		t.Errorf("Summarize() = %q", got)
	}
}

func TestNotConfigured(t *testing.T) {
	svc := NewService(Config{})
	if svc.IsConfigured() {
		t.Error("service without API key must not report configured")
	}
	if _, err := svc.Improve(context.Background(), "text", ""); err == nil {
		t.Error("expected error when not configured")
	}
}

func TestAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "quota exceeded"}})
	}))
	defer ts.Close()

	svc := NewService(Config{URL: ts.URL, APIKey: "key"})
	_, err := svc.Improve(context.Background(), "text", "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected quota error, got %v", err)
	}
}
