// Package generator drafts cover letters for gated records through an
// OpenAI-compatible chat completions endpoint.
package generator

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

// Request carries everything the drafting prompt needs.
type Request struct {
	Posting              records.Posting
	Narrative            string
	ReasoningExplanation string
	ContactName          string
}

// Drafter produces cover letter text for a record.
type Drafter struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// Option customizes a Drafter.
type Option func(*Drafter)

// WithHTTPClient overrides the completions client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Drafter) {
		if client != nil {
			d.client = client
		}
	}
}

// NewDrafter builds the letter generator from the generator configuration.
func NewDrafter(cfg *config.Config, logger *slog.Logger, opts ...Option) *Drafter {
	timeout := time.Duration(cfg.Generator.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	d := &Drafter{
		endpoint: strings.TrimSpace(cfg.Generator.BaseURL),
		apiKey:   cfg.Generator.APIKey,
		model:    cfg.Generator.Model,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "generator"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Draft generates the cover letter text. Responses that come back empty are
// permanent failures; transport trouble is transient.
func (d *Drafter) Draft(ctx context.Context, req Request) (string, error) {
	if d.endpoint == "" {
		return "", services.Wrap(services.ErrConfiguration, "generator", "draft", "generator base URL is not configured", nil)
	}
	if d.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "generator", "draft", "generator API key is not configured", nil)
	}
	if strings.TrimSpace(req.Posting.Description) == "" {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "posting has no description", nil)
	}

	body, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(req)},
		},
		MaxTokens:   800,
		Temperature: 0.7,
	})
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "generator", "draft", "completions request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "generator", "draft", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", services.Wrap(services.ErrTransient, "generator", "draft",
			fmt.Sprintf("completions endpoint returned %s", resp.Status), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrConfiguration, "generator", "draft",
			fmt.Sprintf("completions endpoint rejected credentials: %s", resp.Status), nil)
	default:
		return "", services.Wrap(services.ErrPermanent, "generator", "draft",
			fmt.Sprintf("completions endpoint returned %s", resp.Status), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "decode response", err)
	}
	if decoded.Error != nil {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "response contains no choices", nil)
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", services.Wrap(services.ErrPermanent, "generator", "draft", "model returned empty letter", nil)
	}
	d.logger.Info("letter drafted",
		logging.String("company", req.Posting.Company),
		logging.Int("chars", len(text)))
	return text, nil
}

func buildPrompt(req Request) string {
	contact := req.ContactName
	if strings.TrimSpace(contact) == "" {
		contact = "the candidate"
	}

	var b strings.Builder
	b.WriteString("You are an expert cover letter writer. Write a compelling, authentic cover letter.\n\n")
	fmt.Fprintf(&b, "CANDIDATE INFORMATION:\nName: %s\nRole: %s\nCompany: %s\n\n", contact, req.Posting.Title, req.Posting.Company)
	fmt.Fprintf(&b, "JOB DESCRIPTION:\n%s\n\n", req.Posting.Description)
	fmt.Fprintf(&b, "CANDIDATE PROFILE:\n%s\n\n", req.Narrative)
	if strings.TrimSpace(req.ReasoningExplanation) != "" {
		fmt.Fprintf(&b, "WHY THIS FIT:\n%s\n\n", req.ReasoningExplanation)
	}
	b.WriteString(`YOUR TASK:
Write a 3-paragraph cover letter:
1. Opening: Why genuinely interested in this role (2-3 sentences).
2. Body: How specific experience matches their needs, with ONE concrete example from the candidate's history that aligns with the job description (3-4 sentences).
3. Closing: Enthusiasm and next steps (2 sentences).

REQUIREMENTS:
- Write in the candidate's authentic voice
- Be specific: reference actual skills and projects from the profile
- Mention the company and role by name
- Avoid cliches ("I'm a team player", "passionate about technology")
- 250-300 words total
- Output ONLY the cover letter text, no preamble, no formatting labels`)
	return b.String()
}
