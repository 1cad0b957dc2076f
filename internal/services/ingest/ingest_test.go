package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snatcher/internal/logging"
	"snatcher/internal/services"
	"snatcher/internal/services/ingest"
	"snatcher/internal/testsupport"
)

const structuredPage = `<!DOCTYPE html>
<html><head>
<title>Platform Engineer | ExampleBoard</title>
<script type="application/ld+json">
{
  "@type": "JobPosting",
  "title": "Platform Engineer",
  "description": "<p>Build and operate Go services.</p><p>On-call rotation.</p>",
  "hiringOrganization": {"name": "Initech"},
  "jobLocation": {"address": {"addressLocality": "Helsinki", "addressCountry": "FI"}}
}
</script>
</head><body><h1>Platform Engineer</h1></body></html>`

const plainPage = `<!DOCTYPE html>
<html><head><title>Backend Developer - Indeed</title></head>
<body>
<script>window.tracking = true;</script>
<h1>Backend Developer</h1>
<div class="description">We need a backend developer who knows Go and SQL.</div>
</body></html>`

func newFetcher(t *testing.T) *ingest.Fetcher {
	t.Helper()
	return ingest.NewFetcher(testsupport.NewConfig(t), logging.NewNop())
}

func TestFetchParsesStructuredData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(structuredPage))
	}))
	defer server.Close()

	posting, err := newFetcher(t).Fetch(context.Background(), server.URL+"/jobs/123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if posting.Title != "Platform Engineer" {
		t.Errorf("title = %q", posting.Title)
	}
	if posting.Company != "Initech" {
		t.Errorf("company = %q", posting.Company)
	}
	if posting.Location != "Helsinki, FI" {
		t.Errorf("location = %q", posting.Location)
	}
	if !strings.Contains(posting.Description, "Build and operate Go services.") {
		t.Errorf("description = %q", posting.Description)
	}
	if strings.Contains(posting.Description, "<p>") {
		t.Errorf("description still contains markup: %q", posting.Description)
	}
	if posting.Source != "generic" {
		t.Errorf("source = %q", posting.Source)
	}
}

func TestFetchFallsBackToDOMHeuristics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(plainPage))
	}))
	defer server.Close()

	posting, err := newFetcher(t).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if posting.Title != "Backend Developer" {
		t.Errorf("title = %q", posting.Title)
	}
	if !strings.Contains(posting.Description, "knows Go and SQL") {
		t.Errorf("description = %q", posting.Description)
	}
	if strings.Contains(posting.Description, "tracking") {
		t.Errorf("description leaked script content: %q", posting.Description)
	}
}

func TestFetchGonePostingIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	_, err := newFetcher(t).Fetch(context.Background(), server.URL)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newFetcher(t).Fetch(context.Background(), server.URL)
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFetchInvalidURLIsPermanent(t *testing.T) {
	_, err := newFetcher(t).Fetch(context.Background(), "ftp://example.com/job")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
}

func TestSourceFromURL(t *testing.T) {
	cases := map[string]string{
		"https://www.linkedin.com/jobs/view/42": "linkedin",
		"https://fi.indeed.com/viewjob?jk=abc": "indeed",
		"https://duunitori.fi/tyopaikat/tyo/1": "duunitori",
		"https://jobs.example.com/postings/7":  "generic",
	}
	for raw, want := range cases {
		if got := ingest.SourceFromURL(raw); got != want {
			t.Errorf("SourceFromURL(%q) = %q, want %q", raw, got, want)
		}
	}
}
