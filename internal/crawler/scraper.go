package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/httpclient"
)

const (
	defaultMaxHTMLBodyBytes = 2 << 20 // 2 MiB
	minLeafTextLen          = 6
)

// browserHeaders mimic a desktop browser; many scholarship sites reject bare clients.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Upgrade-Insecure-Requests": "1",
}

// BrowserHeaders returns a copy of the default request headers.
func BrowserHeaders() map[string]string {
	out := make(map[string]string, len(browserHeaders))
	for k, v := range browserHeaders {
		out[k] = v
	}
	return out
}

// Scraper fetches a page and linearizes its visible text.
type Scraper struct {
	client  httpclient.Client
	maxBody int
	log     logger.Logger
}

// NewScraper constructs a scraper with the provided HTTP client (or default).
func NewScraper(client httpclient.Client, log logger.Logger) *Scraper {
	if client == nil {
		client = DefaultHTTPClient(15*time.Second, 3, 500*time.Millisecond)
	}
	return &Scraper{client: client, maxBody: defaultMaxHTMLBodyBytes, log: logger.Ensure(log)}
}

// WithMaxBodyBytes overrides the body cap.
func (s *Scraper) WithMaxBodyBytes(n int) *Scraper {
	if n > 0 {
		s.maxBody = n
	}
	return s
}

// DefaultHTTPClient returns a resty client that retries transient failures
// with exponential backoff.
func DefaultHTTPClient(timeout time.Duration, attempts int, backoff time.Duration) httpclient.Client {
	maxWait := backoff
	for i := 1; i < attempts; i++ {
		maxWait *= 2
	}
	return httpclient.NewRestyClient(timeout, httpclient.WithRetry(attempts, backoff, maxWait))
}

// Fetch retrieves url and returns its linearized text. Expected failures are
// returned as *domain.FetchError.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (domain.PageContent, error) {
	resp, err := s.client.Get(ctx, rawURL, browserHeaders)
	if err != nil {
		return domain.PageContent{}, &domain.FetchError{Kind: classifyTransportError(err), URL: rawURL, Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized || status == http.StatusTooManyRequests:
		return domain.PageContent{}, &domain.FetchError{Kind: domain.FetchForbidden, URL: rawURL, Status: status}
	case status != http.StatusOK:
		return domain.PageContent{}, &domain.FetchError{Kind: domain.FetchNetwork, URL: rawURL, Status: status}
	}

	body := resp.Body()
	if len(body) > s.maxBody {
		body = body[:s.maxBody]
	}
	if !isHTML(resp.Header("Content-Type"), body) {
		return domain.PageContent{}, &domain.FetchError{
			Kind: domain.FetchNotHTML,
			URL:  rawURL,
			Err:  fmt.Errorf("content type %q", resp.Header("Content-Type")),
		}
	}

	page, err := linearize(body)
	if err != nil {
		return domain.PageContent{}, &domain.FetchError{Kind: domain.FetchNotHTML, URL: rawURL, Err: err}
	}
	page.URL = rawURL

	s.log.DebugObj("page fetched", "page_fetch", map[string]any{
		"url":        rawURL,
		"body_bytes": len(body),
		"text_chars": len(page.Text),
	})
	return page, nil
}

func classifyTransportError(err error) domain.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FetchTimeout
	}
	return domain.FetchNetwork
}

func isHTML(contentType string, body []byte) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		contentType = strings.ToLower(http.DetectContentType(body))
	}
	return strings.Contains(contentType, "html")
}

// linearize strips non-content nodes and renders the remaining structure as
// labelled sections.
func linearize(body []byte) (domain.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.PageContent{}, fmt.Errorf("parse html: %w", err)
	}

	meta := parseMeta(doc)
	doc.Find("script, style, noscript, template").Remove()

	var sections []domain.Section
	add := func(label, text string) {
		if text = collapse(text); text != "" {
			sections = append(sections, domain.Section{Label: label, Text: text})
		}
	}

	add(domain.SectionTitle, meta.Title)
	add(domain.SectionMetaDescription, meta.Description)
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		add(domain.SectionHeading, sel.Text())
	})
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		add(domain.SectionParagraph, sel.Text())
	})
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		add(domain.SectionListItem, sel.Text())
	})
	doc.Find("div, span").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		if text := collapse(sel.Text()); len(text) >= minLeafTextLen {
			add(domain.SectionText, text)
		}
	})

	return domain.PageContent{
		Title: collapse(meta.Title),
		Text:  domain.JoinSections(sections),
	}, nil
}

func parseMeta(doc *goquery.Document) pageMeta {
	pm := pageMeta{}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm.Title = firstNonEmpty(
		strings.TrimSpace(doc.Find("title").First().Text()),
		extract(`meta[property="og:title"]`),
	)
	pm.Description = firstNonEmpty(
		extract(`meta[name="description"]`),
		extract(`meta[property="og:description"]`),
	)

	return pm
}

type pageMeta struct {
	Title       string
	Description string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves ref against base; it returns "" when either is invalid.
func ResolveURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
