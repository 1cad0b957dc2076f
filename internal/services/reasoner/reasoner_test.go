package reasoner_test

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
	"snatcher/internal/services/reasoner"
	"snatcher/internal/testsupport"
)

func generateServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode generate request: %v", err)
		}
		if req.Stream {
			t.Fatal("stream must be disabled")
		}
		if !strings.Contains(req.Prompt, "JOB POSTING") {
			t.Fatalf("prompt missing posting section: %q", req.Prompt[:80])
		}
		json.NewEncoder(w).Encode(map[string]string{"response": response})
	}))
}

func testPosting() records.Posting {
	return records.Posting{
		Title:       "Platform Engineer",
		Company:     "Initech",
		Description: "Build and run distributed systems in Go.",
	}
}

func TestScoreParsesVerdict(t *testing.T) {
	server := generateServer(t, `{
		"fit_assessment": "Strong fit for infrastructure work.",
		"top_3_reasons": ["Go experience", "On-call background", "Distributed systems"],
		"confidence": 0.85,
		"concerns": "Role may require travel."
	}`)
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = server.URL

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	verdict, err := scorer.Score(context.Background(), testPosting(), "career narrative")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if verdict.Score != 0.85 {
		t.Fatalf("score = %v, want 0.85", verdict.Score)
	}
	for _, want := range []string{"Strong fit", "- Go experience", "Concerns: Role may require travel."} {
		if !strings.Contains(verdict.Explanation, want) {
			t.Fatalf("explanation missing %q:\n%s", want, verdict.Explanation)
		}
	}
}

func TestScoreStripsCodeFences(t *testing.T) {
	server := generateServer(t, "```json\n{\"fit_assessment\": \"ok\", \"confidence\": 0.5}\n```")
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = server.URL

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	verdict, err := scorer.Score(context.Background(), testPosting(), "narrative")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if verdict.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", verdict.Score)
	}
}

func TestScoreUnparseableVerdictIsPermanent(t *testing.T) {
	server := generateServer(t, "I think this job is great, around 80% confident!")
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = server.URL

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), testPosting(), "narrative")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestScoreOutOfRangeConfidenceIsPermanent(t *testing.T) {
	server := generateServer(t, `{"fit_assessment": "ok", "confidence": 8.5}`)
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = server.URL

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), testPosting(), "narrative")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestScoreUnreachableHostIsTransient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = "http://127.0.0.1:1"

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), testPosting(), "narrative")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestScoreEmptyDescriptionIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Reasoner.BaseURL = "http://127.0.0.1:1"

	scorer := reasoner.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), records.Posting{Title: "x"}, "narrative")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}
