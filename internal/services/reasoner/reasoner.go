// Package reasoner implements the deep scorer: a hiring-advisor prompt sent
// to an Ollama-compatible generate endpoint on the exclusive compute host,
// with the model's JSON verdict parsed into a score and explanation.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/records"
	"snatcher/internal/services"
)

// Verdict is the structured outcome of a deep-scoring run.
type Verdict struct {
	Score       float64
	Explanation string
}

// Scorer calls the reasoning model. Callers must hold the compute lease for
// the duration of Score; the scorer itself performs no power management.
type Scorer struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithHTTPClient overrides the generate client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scorer) {
		if client != nil {
			s.client = client
		}
	}
}

// NewScorer builds the deep scorer from the reasoner configuration.
func NewScorer(cfg *config.Config, logger *slog.Logger, opts ...Option) *Scorer {
	timeout := time.Duration(cfg.Reasoner.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s := &Scorer{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Reasoner.BaseURL), "/"),
		model:   cfg.Reasoner.Model,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "reasoner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates a posting against the candidate narrative and returns the
// model's confidence as the reasoning score.
func (s *Scorer) Score(ctx context.Context, posting records.Posting, narrative string) (Verdict, error) {
	if s.baseURL == "" {
		return Verdict{}, services.Wrap(services.ErrConfiguration, "reasoner", "score", "reasoner base URL is not configured", nil)
	}
	if strings.TrimSpace(posting.Description) == "" {
		return Verdict{}, services.Wrap(services.ErrPermanent, "reasoner", "score", "posting has no description", nil)
	}

	prompt := buildPrompt(posting, narrative)
	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return Verdict{}, err
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return Verdict{}, services.Wrap(services.ErrPermanent, "reasoner", "score", "model returned unparseable verdict", err)
	}
	s.logger.Info("deep score computed",
		logging.Float64("score", verdict.Score),
		logging.String("model", s.model))
	return verdict, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (s *Scorer) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: s.model, Prompt: prompt})
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "reasoner", "generate", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "reasoner", "generate", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "reasoner", "generate", "generate request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "reasoner", "generate", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = services.ErrPermanent
		}
		return "", services.Wrap(marker, "reasoner", "generate",
			fmt.Sprintf("generate endpoint returned %s", resp.Status), nil)
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrPermanent, "reasoner", "generate", "decode response", err)
	}
	s.logger.Debug("inference complete", logging.Duration("elapsed", time.Since(start)))
	return decoded.Response, nil
}

// verdictPayload mirrors the JSON shape the prompt demands from the model.
type verdictPayload struct {
	FitAssessment string          `json:"fit_assessment"`
	TopReasons    []string        `json:"top_3_reasons"`
	Confidence    json.Number     `json:"confidence"`
	Concerns      json.RawMessage `json:"concerns"`
}

// parseVerdict extracts the score and explanation from the model output.
// Markdown code fences around the JSON are tolerated.
func parseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		lines := strings.Split(raw, "\n")
		if len(lines) >= 2 {
			raw = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	score, err := payload.Confidence.Float64()
	if err != nil {
		return Verdict{}, fmt.Errorf("confidence %q is not numeric: %w", payload.Confidence, err)
	}
	if score < 0 || score > 1 {
		return Verdict{}, fmt.Errorf("confidence %v outside [0, 1]", score)
	}

	var parts []string
	if assessment := strings.TrimSpace(payload.FitAssessment); assessment != "" {
		parts = append(parts, assessment)
	}
	for _, reason := range payload.TopReasons {
		if reason = strings.TrimSpace(reason); reason != "" {
			parts = append(parts, "- "+reason)
		}
	}
	if concerns := decodeConcerns(payload.Concerns); concerns != "" {
		parts = append(parts, "Concerns: "+concerns)
	}

	return Verdict{Score: score, Explanation: strings.Join(parts, "\n")}, nil
}

// decodeConcerns accepts either a string or a list of strings; models drift
// between the two.
func decodeConcerns(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return strings.TrimSpace(strings.Join(many, "; "))
	}
	return ""
}

func buildPrompt(posting records.Posting, narrative string) string {
	var b strings.Builder
	b.WriteString("You are a hiring advisor evaluating job fit for a candidate.\n\n")
	b.WriteString("JOB POSTING:\n")
	if posting.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", posting.Title)
	}
	if posting.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", posting.Company)
	}
	if posting.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", posting.Location)
	}
	b.WriteString(posting.Description)
	b.WriteString("\n\nCANDIDATE PROFILE:\n")
	b.WriteString(narrative)
	b.WriteString("\n\nYOUR TASK:\n")
	b.WriteString(`Evaluate if this is a good fit for the candidate. Respond with ONLY valid JSON:
{
  "fit_assessment": "[one sentence: is this a good fit?]",
  "top_3_reasons": [
    "[reason 1 with specific reference to candidate or job]",
    "[reason 2]",
    "[reason 3]"
  ],
  "confidence": 0.75,
  "concerns": "[any red flags or mismatches]"
}

Be honest. A mediocre fit gets 0.4-0.6. A great fit gets 0.8+.
Respond with JSON only, no preamble, no explanation.`)
	return b.String()
}
