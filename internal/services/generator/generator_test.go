package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snatcher/internal/logging"
	"snatcher/internal/records"
	"snatcher/internal/services"
	"snatcher/internal/services/generator"
	"snatcher/internal/testsupport"
)

func draftRequest() generator.Request {
	return generator.Request{
		Posting: records.Posting{
			Title:       "Platform Engineer",
			Company:     "Initech",
			Description: "Own the Go services powering our billing pipeline.",
		},
		Narrative:            "Ten years of Go and distributed systems.",
		ReasoningExplanation: "Strong infrastructure overlap.",
		ContactName:          "Alex",
	}
}

func newDrafter(t *testing.T, serverURL string) *generator.Drafter {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Generator.BaseURL = serverURL
	cfg.Generator.APIKey = "test-key"
	return generator.NewDrafter(cfg, logging.NewNop())
}

func TestDraftReturnsLetterText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization header = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Initech") {
			t.Fatalf("prompt missing company: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Dear Initech team, ..."}},
			},
		})
	}))
	defer server.Close()

	letter, err := newDrafter(t, server.URL).Draft(context.Background(), draftRequest())
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !strings.Contains(letter, "Initech") {
		t.Fatalf("letter = %q", letter)
	}
}

func TestDraftEmptyCompletionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "   "}},
			},
		})
	}))
	defer server.Close()

	_, err := newDrafter(t, server.URL).Draft(context.Background(), draftRequest())
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestDraftRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newDrafter(t, server.URL).Draft(context.Background(), draftRequest())
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDraftBadCredentialsIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newDrafter(t, server.URL).Draft(context.Background(), draftRequest())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDraftMissingKeyIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Generator.BaseURL = "http://127.0.0.1:1"
	cfg.Generator.APIKey = ""
	drafter := generator.NewDrafter(cfg, logging.NewNop())

	_, err := drafter.Draft(context.Background(), draftRequest())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
