// Package ingest fetches job postings from board URLs and extracts the fields
// the pipeline scores against.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/records"
	"snatcher/internal/services"
)

// Fetcher retrieves and parses job postings.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewFetcher builds a Fetcher from the ingest configuration.
func NewFetcher(cfg *config.Config, logger *slog.Logger, opts ...Option) *Fetcher {
	timeout := time.Duration(cfg.Ingest.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := strings.TrimSpace(cfg.Ingest.UserAgent)
	if ua == "" {
		ua = "snatcher/0.1"
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
		logger:    logging.NewComponentLogger(logger, "ingest"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValidateURL reports whether the value is an absolute http or https URL.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// SourceFromURL names the job board serving a posting URL.
func SourceFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "generic"
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "linkedin.com"):
		return "linkedin"
	case strings.Contains(host, "indeed.com"):
		return "indeed"
	case strings.Contains(host, "duunitori.fi"):
		return "duunitori"
	default:
		return "generic"
	}
}

// Fetch retrieves a posting URL and extracts its fields. A posting whose page
// yields no usable description is a permanent failure; the caller decides
// whether to park it for manual review.
func (f *Fetcher) Fetch(ctx context.Context, postingURL string) (records.Posting, error) {
	if err := ValidateURL(postingURL); err != nil {
		return records.Posting{}, services.Wrap(services.ErrPermanent, "ingest", "fetch", "invalid posting URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, postingURL, nil)
	if err != nil {
		return records.Posting{}, services.Wrap(services.ErrPermanent, "ingest", "fetch", "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return records.Posting{}, services.Wrap(services.ErrTransient, "ingest", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return records.Posting{}, services.Wrap(services.ErrTransient, "ingest", "fetch", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return records.Posting{}, services.Wrap(services.ErrPermanent, "ingest", "fetch",
			fmt.Sprintf("posting no longer exists: %s", resp.Status), nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return records.Posting{}, services.Wrap(services.ErrTransient, "ingest", "fetch",
			fmt.Sprintf("board returned %s", resp.Status), nil)
	default:
		return records.Posting{}, services.Wrap(services.ErrPermanent, "ingest", "fetch",
			fmt.Sprintf("board returned %s", resp.Status), nil)
	}

	posting := parsePosting(string(body))
	posting.Source = SourceFromURL(postingURL)
	if strings.TrimSpace(posting.Description) == "" {
		return records.Posting{}, services.Wrap(services.ErrPermanent, "ingest", "parse", "no description extracted from page", nil)
	}
	f.logger.Info("posting fetched",
		logging.String("source", posting.Source),
		logging.String("title", posting.Title),
		logging.String("company", posting.Company))
	return posting, nil
}
