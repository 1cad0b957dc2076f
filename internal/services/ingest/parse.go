package ingest

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"snatcher/internal/records"
)

// jobPostingLD is the subset of schema.org JobPosting structured data the
// parser consumes. Boards that publish JSON-LD are the reliable path; the DOM
// heuristics below only fill the gaps.
type jobPostingLD struct {
	Type               string `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation struct {
		Address struct {
			AddressLocality string `json:"addressLocality"`
			AddressCountry  string `json:"addressCountry"`
		} `json:"address"`
	} `json:"jobLocation"`
}

var titleSuffixPattern = regexp.MustCompile(`\s*[|\x{2013}-].*$`)

// parsePosting extracts posting fields from raw HTML. Missing fields stay
// empty; the caller decides whether the result is usable.
func parsePosting(rawHTML string) records.Posting {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return records.Posting{}
	}

	var posting records.Posting

	if ld := findJobPostingLD(doc); ld != nil {
		posting.Title = strings.TrimSpace(ld.Title)
		posting.Company = strings.TrimSpace(ld.HiringOrganization.Name)
		posting.Description = strings.TrimSpace(stripTags(ld.Description))
		locality := strings.TrimSpace(ld.JobLocation.Address.AddressLocality)
		country := strings.TrimSpace(ld.JobLocation.Address.AddressCountry)
		switch {
		case locality != "" && country != "":
			posting.Location = locality + ", " + country
		case locality != "":
			posting.Location = locality
		case country != "":
			posting.Location = country
		}
	}

	if posting.Title == "" {
		posting.Title = extractTitle(doc)
	}
	if posting.Description == "" {
		posting.Description = extractBodyText(doc)
	}
	return posting
}

// findJobPostingLD scans script[type="application/ld+json"] blocks for a
// JobPosting object, either top-level or inside an array.
func findJobPostingLD(doc *html.Node) *jobPostingLD {
	var found *jobPostingLD
	walk(doc, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "script" || attr(n, "type") != "application/ld+json" {
			return true
		}
		raw := textContent(n)

		var single jobPostingLD
		if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Type == "JobPosting" {
			found = &single
			return false
		}
		var many []jobPostingLD
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for i := range many {
				if many[i].Type == "JobPosting" {
					found = &many[i]
					return false
				}
			}
		}
		return true
	})
	return found
}

// extractTitle prefers the first h1 and falls back to the page title with any
// board suffix ("| LinkedIn", "- Indeed") removed.
func extractTitle(doc *html.Node) string {
	var h1, pageTitle string
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "h1":
			if h1 == "" {
				h1 = strings.TrimSpace(textContent(n))
			}
		case "title":
			if pageTitle == "" {
				pageTitle = strings.TrimSpace(textContent(n))
			}
		}
		return h1 == "" || pageTitle == ""
	})
	if h1 != "" {
		return h1
	}
	return strings.TrimSpace(titleSuffixPattern.ReplaceAllString(pageTitle, ""))
}

// extractBodyText flattens visible text from the body, skipping script and
// style subtrees. Heuristic fallback for boards without structured data.
func extractBodyText(doc *html.Node) string {
	var body *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return ""
	}

	var parts []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(body)
	return strings.Join(parts, "\n")
}

// stripTags removes markup from JSON-LD descriptions, which boards routinely
// embed as HTML strings.
func stripTags(value string) string {
	if !strings.Contains(value, "<") {
		return value
	}
	doc, err := html.Parse(strings.NewReader(value))
	if err != nil {
		return value
	}
	var parts []string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		} else {
			b.WriteString(textContent(c))
		}
	}
	return b.String()
}
