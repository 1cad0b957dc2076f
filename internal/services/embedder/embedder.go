// Package embedder implements the fast scorer: posting text and the candidate
// narrative are embedded via an Ollama-compatible endpoint and compared with
// cosine similarity.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/services"
)

// Scorer produces cosine similarity scores between a posting and the
// candidate's career narrative.
type Scorer struct {
	endpoint      string
	model         string
	narrativePath string
	client        *http.Client
	logger        *slog.Logger

	mu                 sync.Mutex
	narrativeEmbedding []float64
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithHTTPClient overrides the embeddings client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scorer) {
		if client != nil {
			s.client = client
		}
	}
}

// NewScorer builds the fast scorer from the matching configuration.
func NewScorer(cfg *config.Config, logger *slog.Logger, opts ...Option) *Scorer {
	s := &Scorer{
		endpoint:      strings.TrimSpace(cfg.Matching.EmbeddingsURL),
		model:         cfg.Matching.EmbeddingsModel,
		narrativePath: cfg.Profile.NarrativePath,
		client:        &http.Client{Timeout: 60 * time.Second},
		logger:        logging.NewComponentLogger(logger, "embedder"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score embeds the posting text and returns its cosine similarity against the
// narrative embedding. The narrative is embedded once and cached for the life
// of the scorer.
func (s *Scorer) Score(ctx context.Context, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, services.Wrap(services.ErrPermanent, "embedder", "score", "posting text is empty", nil)
	}

	narrative, err := s.narrative(ctx)
	if err != nil {
		return 0, err
	}

	posting, err := s.embed(ctx, text)
	if err != nil {
		return 0, err
	}

	score, err := cosineSimilarity(narrative, posting)
	if err != nil {
		return 0, services.Wrap(services.ErrPermanent, "embedder", "score", "embedding comparison failed", err)
	}
	s.logger.Debug("cosine score computed", logging.Float64("score", score))
	return score, nil
}

func (s *Scorer) narrative(ctx context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.narrativeEmbedding != nil {
		return s.narrativeEmbedding, nil
	}

	raw, err := os.ReadFile(s.narrativePath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "embedder", "narrative", "read narrative file", err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, services.Wrap(services.ErrConfiguration, "embedder", "narrative", "narrative file is empty", nil)
	}

	embedding, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}
	s.narrativeEmbedding = embedding
	s.logger.Info("narrative embedded", logging.Int("dimensions", len(embedding)))
	return embedding, nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float64, error) {
	if s.endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "embedder", "embed", "embeddings URL is not configured", nil)
	}

	body, err := json.Marshal(embeddingsRequest{Model: s.model, Prompt: text})
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "embedder", "embed", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "embedder", "embed", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embedder", "embed", "embeddings request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embedder", "embed", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = services.ErrPermanent
		}
		return nil, services.Wrap(marker, "embedder", "embed",
			fmt.Sprintf("embeddings endpoint returned %s", resp.Status), nil)
	}

	var decoded embeddingsResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "embedder", "embed", "decode response", err)
	}
	if len(decoded.Embedding) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "embedder", "embed", "endpoint returned empty embedding", nil)
	}
	return decoded.Embedding, nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude embedding")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
