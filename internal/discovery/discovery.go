// Package discovery finds candidate scholarship links on listing pages and
// submits them for later extraction. It reads one page per source and does
// not follow links.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/crawler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/ingress"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/httpclient"
)

// SourceReport is the outcome for one source.
type SourceReport struct {
	Source     string `json:"source"`
	Found      int    `json:"found"`
	Stored     int    `json:"stored"`
	Duplicates int    `json:"duplicates"`
	Error      string `json:"error,omitempty"`
}

// Report aggregates one discovery pass.
type Report struct {
	Sources []SourceReport `json:"sources"`
	Found   int            `json:"found"`
	Stored  int            `json:"stored"`
}

// Service walks the enabled sources.
type Service struct {
	client    httpclient.Client
	submitter ingress.Submitter
	sources   []Source
	log       logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService builds a discovery service over the enabled sources.
func NewService(client httpclient.Client, submitter ingress.Submitter, sources []Source, log logger.Logger) *Service {
	return &Service{
		client:    client,
		submitter: submitter,
		sources:   Enabled(sources),
		log:       logger.Ensure(log),
		sleep:     sleepCtx,
	}
}

// Sources returns the enabled sources.
func (s *Service) Sources() []Source {
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Discover fetches each enabled source and submits the links it lists.
// A failing source does not stop the others; their errors are joined.
func (s *Service) Discover(ctx context.Context) (Report, error) {
	var report Report
	var errs []error

	for i, src := range s.sources {
		if i > 0 {
			if err := s.sleep(ctx, s.sources[i-1].RequestDelay()); err != nil {
				errs = append(errs, err)
				break
			}
		}

		sr, err := s.discoverSource(ctx, src)
		if err != nil {
			sr.Error = err.Error()
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			s.log.WarnObj("discovery source failed", "discovery_error", map[string]any{
				"source": src.Name,
				"error":  err.Error(),
			})
		}
		report.Sources = append(report.Sources, sr)
		report.Found += sr.Found
		report.Stored += sr.Stored
	}

	s.log.InfoObj("discovery completed", "discovery_result", map[string]any{
		"sources": len(s.sources),
		"found":   report.Found,
		"stored":  report.Stored,
	})
	return report, errors.Join(errs...)
}

func (s *Service) discoverSource(ctx context.Context, src Source) (SourceReport, error) {
	sr := SourceReport{Source: src.Name}

	resp, err := s.client.Get(ctx, src.URL, crawler.BrowserHeaders())
	if err != nil {
		return sr, fmt.Errorf("fetch listing: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return sr, fmt.Errorf("fetch listing: status %d", resp.StatusCode())
	}

	links, err := ExtractLinks(resp.Body(), src)
	if err != nil {
		return sr, err
	}
	sr.Found = len(links)

	for _, link := range links {
		res, err := s.submitter.Submit(ctx, ingress.Submission{
			URL:    link,
			Actor:  "discovery",
			Source: "discovery:" + src.Name,
		})
		if err != nil {
			return sr, fmt.Errorf("submit %s: %w", link, err)
		}
		switch {
		case res.OK:
			sr.Stored++
		case errors.Is(res.Err(), domain.ErrDuplicateSubmission):
			sr.Duplicates++
		}
	}
	return sr, nil
}

// ExtractLinks returns the absolute, de-duplicated item links on a listing page.
func ExtractLinks(body []byte, src Source) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find(src.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		anchor := item
		switch {
		case src.LinkSelector != "":
			anchor = item.Find(src.LinkSelector).First()
		case !item.Is("a"):
			anchor = item.Find("a[href]").First()
		}

		href, ok := anchor.Attr("href")
		if !ok {
			return
		}
		abs := crawler.ResolveURL(href, src.URL)
		if !strings.HasPrefix(abs, "http://") && !strings.HasPrefix(abs, "https://") {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
