package crawler

import (
	"context"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/extraction"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

// ContentFetcher retrieves and linearizes one page. Expected failures are
// returned as *domain.FetchError.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (domain.PageContent, error)
}

// Extractor turns page text into a scholarship record.
type Extractor interface {
	Extract(ctx context.Context, url, pageText string) extraction.Result
}

// EventPublisher publishes catalog events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
