// Package storage provides the link and catalog persistence backends.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

// LinkStore records submitted URLs exactly once.
type LinkStore interface {
	Store(ctx context.Context, rawURL, actor, sourceContext string) (domain.StoreResult, error)
	ListUnprocessed(ctx context.Context, limit int) ([]domain.SubmittedLink, error)
	MarkProcessed(ctx context.Context, ids []string) (int, error)
	GetLink(ctx context.Context, id string) (domain.SubmittedLink, error)
}

// CatalogStore keeps scholarship records unique by normalized name.
type CatalogStore interface {
	Upsert(ctx context.Context, rec domain.ScholarshipRecord) (domain.UpsertResult, error)
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.ScholarshipRecord, error)
	RemoveExpired(ctx context.Context, now time.Time) (domain.RemoveResult, error)
	Count(ctx context.Context) (int, error)
}

// SeenSet remembers keys for a bounded time.
type SeenSet interface {
	// MarkSeen returns true if the key was newly marked.
	MarkSeen(ctx context.Context, key string) (bool, error)
}

// Store is a backend that serves both logical tables.
type Store interface {
	LinkStore
	CatalogStore
	Ping(ctx context.Context) error
	Close() error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	// Location resolves date-only deadlines.
	Location        *time.Location
	SeenTTL         time.Duration
	CleanupInterval time.Duration
}

const (
	defaultSeenTTL         = 5 * time.Minute
	defaultCleanupInterval = time.Hour
	maxListLimit           = 500
)

// NewStore creates the configured storage backend. For bbolt, path is the
// database file; for postgres it is the DSN.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		store, err := openPostgres(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = defaultSeenTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// newLink validates and normalizes a submission. A non-nil StoreResult means
// the submission was rejected before reaching storage.
func newLink(rawURL, actor, sourceContext string, now time.Time) (domain.SubmittedLink, *domain.StoreResult) {
	normalized, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return domain.SubmittedLink{}, &domain.StoreResult{
			OK:     false,
			URL:    strings.TrimSpace(rawURL),
			Reason: domain.ReasonInvalidURL,
		}
	}
	return domain.SubmittedLink{
		ID:            uuid.NewString(),
		URL:           normalized,
		SubmittedBy:   strings.TrimSpace(actor),
		SourceContext: strings.TrimSpace(sourceContext),
		CreatedAt:     now.UTC(),
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// prepareRecord trims the record and assigns identity fields.
func prepareRecord(rec domain.ScholarshipRecord, now time.Time) (domain.ScholarshipRecord, error) {
	rec.Name = strings.Join(strings.Fields(rec.Name), " ")
	if rec.NameKey() == "" || !domain.Specified(rec.Name) {
		return rec, fmt.Errorf("scholarship name is required")
	}
	rec.Deadline = strings.TrimSpace(rec.Deadline)
	rec.Amount = strings.TrimSpace(rec.Amount)
	rec.Description = strings.TrimSpace(rec.Description)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
	return rec, nil
}

// matchesQuery applies the name and best-effort amount filters.
func matchesQuery(rec domain.ScholarshipRecord, nameNeedle string, minAmount float64, useAmount bool) bool {
	if nameNeedle != "" && !strings.Contains(rec.NameKey(), nameNeedle) {
		return false
	}
	if useAmount {
		amount, ok := domain.ParseAmount(rec.Amount)
		if !ok || amount < minAmount {
			return false
		}
	}
	return true
}

// compileQuery resolves the filters; an unparsable minimum amount disables
// the amount filter.
func compileQuery(q domain.SearchQuery) (string, float64, bool) {
	needle := domain.NormalizeName(q.Name)
	if strings.TrimSpace(q.MinAmount) == "" {
		return needle, 0, false
	}
	min, ok := domain.ParseAmount(q.MinAmount)
	return needle, min, ok
}

func sortByName(recs []domain.ScholarshipRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ki, kj := recs[i].NameKey(), recs[j].NameKey()
		if ki != kj {
			return ki < kj
		}
		return recs[i].Name < recs[j].Name
	})
}

func applyLimit(recs []domain.ScholarshipRecord, limit int) []domain.ScholarshipRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
