package embedder_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"snatcher/internal/logging"
	"snatcher/internal/services"
	"snatcher/internal/services/embedder"
	"snatcher/internal/testsupport"
)

// fakeEmbeddings returns fixed vectors keyed by prompt text.
func fakeEmbeddings(t *testing.T, vectors map[string][]float64, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode embeddings request: %v", err)
		}
		vec, ok := vectors[req.Prompt]
		if !ok {
			http.Error(w, "unknown prompt", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
}

func TestScoreComputesCosineSimilarity(t *testing.T) {
	server := fakeEmbeddings(t, map[string][]float64{
		"systems engineer": {1, 0, 0},
		"backend role":     {math.Sqrt(0.5), math.Sqrt(0.5), 0},
	}, nil)
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "systems engineer"))
	cfg.Matching.EmbeddingsURL = server.URL

	scorer := embedder.NewScorer(cfg, logging.NewNop())
	score, err := scorer.Score(context.Background(), "backend role")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if math.Abs(score-math.Sqrt(0.5)) > 1e-9 {
		t.Fatalf("score = %v, want %v", score, math.Sqrt(0.5))
	}
}

func TestScoreCachesNarrativeEmbedding(t *testing.T) {
	var calls atomic.Int64
	server := fakeEmbeddings(t, map[string][]float64{
		"narrative": {0, 1},
		"first":     {1, 1},
		"second":    {0, 2},
	}, &calls)
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "narrative"))
	cfg.Matching.EmbeddingsURL = server.URL

	scorer := embedder.NewScorer(cfg, logging.NewNop())
	if _, err := scorer.Score(context.Background(), "first"); err != nil {
		t.Fatalf("first score: %v", err)
	}
	if _, err := scorer.Score(context.Background(), "second"); err != nil {
		t.Fatalf("second score: %v", err)
	}
	// Narrative once plus one call per posting.
	if got := calls.Load(); got != 3 {
		t.Fatalf("embeddings endpoint called %d times, want 3", got)
	}
}

func TestScoreEmptyPostingIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "narrative"))
	scorer := embedder.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), "   ")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestScoreMissingNarrativeIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Matching.EmbeddingsURL = "http://127.0.0.1:1"
	scorer := embedder.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), "some posting")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestScoreServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "narrative"))
	cfg.Matching.EmbeddingsURL = server.URL

	scorer := embedder.NewScorer(cfg, logging.NewNop())
	_, err := scorer.Score(context.Background(), "posting")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
