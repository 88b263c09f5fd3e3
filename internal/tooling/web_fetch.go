package tooling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxFetchBytes caps how much of a response body is read.
const maxFetchBytes = 2 << 20

// WebFetchTool retrieves a static page and distills it into a JSON digest:
// title, description, headings with their level, paragraph text, and
// outbound links. Scripted pages belong to agent_browser.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool(timeout time.Duration) *WebFetchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebFetchTool{client: &http.Client{Timeout: timeout}}
}

type pageHeading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type pageLink struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

type pageDigest struct {
	URL         string        `json:"url"`
	Status      int           `json:"status"`
	ContentType string        `json:"content_type,omitempty"`
	Truncated   bool          `json:"truncated"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Headings    []pageHeading `json:"headings,omitempty"`
	Paragraphs  []string      `json:"paragraphs,omitempty"`
	Links       []pageLink    `json:"links,omitempty"`
}

func (t *WebFetchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "web_fetch",
			Description: "Fetch a web page and return a JSON digest (title, description, headings, paragraphs, links). Works on static content; use agent_browser for pages that need JavaScript.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Absolute URL to fetch (http or https).",
					},
					"max_paragraphs": map[string]any{
						"type":        "integer",
						"description": "Maximum number of paragraph snippets to include (default 5).",
					},
					"max_links": map[string]any{
						"type":        "integer",
						"description": "Maximum number of links to include (default 10, 0 to omit).",
					},
					"include_headings": map[string]any{
						"type":        "boolean",
						"description": "Whether to include h1-h3 headings (default true).",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

func (t *WebFetchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	rawURL, ok := stringArg(args, "url")
	if !ok || strings.TrimSpace(rawURL) == "" {
		return "", errors.New("url is required")
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", pageURL.Scheme)
	}
	maxParagraphs := intArg(args, "max_paragraphs", 5)
	if maxParagraphs <= 0 {
		maxParagraphs = 5
	}
	maxLinks := intArg(args, "max_links", 10)
	includeHeadings := boolArg(args, "include_headings", true)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Pico/1.0 (+https://github.com/picoagent/pico)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Read one byte past the cap so truncation is detectable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", err
	}
	truncated := len(body) > maxFetchBytes
	if truncated {
		body = body[:maxFetchBytes]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	digest := pageDigest{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
		Title:       pageTitle(doc),
		Description: pageDescription(doc),
	}
	if includeHeadings {
		digest.Headings = collectHeadings(doc)
	}
	digest.Paragraphs = collectParagraphs(doc, maxParagraphs)
	if maxLinks > 0 {
		digest.Links = collectLinks(doc, resp.Request.URL, maxLinks)
	}

	data, err := jsonMarshalNoEscape(digest)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func pageTitle(doc *goquery.Document) string {
	if title := collapseSpaces(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapseSpaces(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
}

func pageDescription(doc *goquery.Document) string {
	if desc := collapseSpaces(doc.Find(`meta[name="description"]`).AttrOr("content", "")); desc != "" {
		return desc
	}
	return collapseSpaces(doc.Find(`meta[property="og:description"]`).AttrOr("content", ""))
}

func collectHeadings(doc *goquery.Document) []pageHeading {
	var headings []pageHeading
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if text := collapseSpaces(sel.Text()); text != "" {
			headings = append(headings, pageHeading{Level: goquery.NodeName(sel), Text: text})
		}
	})
	return headings
}

func collectParagraphs(doc *goquery.Document, limit int) []string {
	var paragraphs []string
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(paragraphs) >= limit {
			return false
		}
		text := collapseSpaces(sel.Text())
		// Skip boilerplate fragments like "Read more" or cookie notices.
		if len(strings.Fields(text)) < 6 {
			return true
		}
		paragraphs = append(paragraphs, text)
		return true
	})
	return paragraphs
}

func collectLinks(doc *goquery.Document, base *url.URL, limit int) []pageLink {
	var links []pageLink
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(links) >= limit {
			return false
		}
		text := collapseSpaces(sel.Text())
		if text == "" {
			return true
		}
		ref, err := url.Parse(sel.AttrOr("href", ""))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		href := abs.String()
		if seen[href] {
			return true
		}
		seen[href] = true
		links = append(links, pageLink{Text: text, Href: href})
		return true
	})
	return links
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
