package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/extraction"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

// fakeFetcher serves page text per URL or a preset error.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	errs    map[string]error
	block   chan struct{}
	started chan struct{}
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (domain.PageContent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := f.errs[url]; err != nil {
		return domain.PageContent{}, err
	}
	return domain.PageContent{URL: url, Text: f.pages[url]}, nil
}

// fakeExtractor treats page text as the scholarship name; "-" means no
// scholarship on the page.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, _ string, text string) extraction.Result {
	if text == "-" {
		return extraction.Result{Reason: domain.ReasonNotScholarship}
	}
	data := domain.NewExtractionResult()
	data.Name = text
	data.Amount = "$1,000"
	return extraction.Result{OK: true, Data: data, Method: extraction.MethodRules}
}

// fakePublisher records published events and can inject errors.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishers.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *fakePublisher) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// failingLinks fails every read.
type failingLinks struct {
	storage.LinkStore
}

func (failingLinks) ListUnprocessed(context.Context, int) ([]domain.SubmittedLink, error) {
	return nil, domain.NewStorageError("list", errors.New("connection refused"))
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewStore("bbolt", filepath.Join(t.TempDir(), "test.db"), storage.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func submit(t *testing.T, store storage.Store, urls ...string) {
	t.Helper()
	for _, u := range urls {
		res, err := store.Store(context.Background(), u, "tester", "test")
		if err != nil || !res.OK {
			t.Fatalf("store %s: %v %#v", u, err, res)
		}
	}
}

func newTestService(t *testing.T, store storage.Store, fetcher ContentFetcher, pub EventPublisher) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Links:     store,
		Catalog:   store,
		Fetcher:   fetcher,
		Extractor: fakeExtractor{},
		Publisher: pub,
	}, Options{LinkDelay: 0})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestProcessBatchIsolatesPartialFailure(t *testing.T) {
	store := openStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
	var urls []string
	for i := 1; i <= 5; i++ {
		u := fmt.Sprintf("https://example.edu/award-%d", i)
		urls = append(urls, u)
		fetcher.pages[u] = fmt.Sprintf("Award Number %d", i)
	}
	fetcher.errs[urls[2]] = &domain.FetchError{Kind: domain.FetchTimeout, URL: urls[2]}
	submit(t, store, urls...)

	pub := &fakePublisher{err: errors.New("sink down")}
	svc := newTestService(t, store, fetcher, pub)

	run, err := svc.ProcessBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(run.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(run.Results))
	}
	for i, r := range run.Results {
		if r.URL != urls[i] {
			t.Fatalf("results out of order: %d is %s", i, r.URL)
		}
	}
	if run.Results[2].Outcome != domain.OutcomeFailed || run.Results[2].Reason != "content_fetch_failed: timeout" {
		t.Fatalf("unexpected outcome for link 3: %#v", run.Results[2])
	}
	sum := run.Summary()
	if sum.Added != 4 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %#v", sum)
	}

	pending, err := store.ListUnprocessed(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListUnprocessed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("every attempted link must be marked processed, %d left", len(pending))
	}
	if n, _ := store.Count(context.Background()); n != 4 {
		t.Fatalf("expected 4 catalog records, got %d", n)
	}
	if pub.count(publishers.EventScholarshipAdded) != 4 || pub.count(publishers.EventBatchCompleted) != 1 {
		t.Fatalf("unexpected events %#v", pub.events)
	}
}

func TestProcessBatchSkipsKnownNamesAndNonScholarships(t *testing.T) {
	store := openStore(t)
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/1": "Future Leaders Scholarship",
		"https://b.example/2": "  future   leaders scholarship ",
		"https://c.example/3": "-",
	}}
	submit(t, store, "https://a.example/1", "https://b.example/2", "https://c.example/3")

	svc := newTestService(t, store, fetcher, nil)
	run, err := svc.ProcessBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	got := []domain.Outcome{run.Results[0].Outcome, run.Results[1].Outcome, run.Results[2].Outcome}
	want := []domain.Outcome{domain.OutcomeAdded, domain.OutcomeSkipped, domain.OutcomeNotScholarship}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outcome %d = %s, want %s", i, got[i], want[i])
		}
	}
	if run.Results[1].Reason != domain.ReasonAlreadyExists {
		t.Fatalf("unexpected skip reason %q", run.Results[1].Reason)
	}
	if run.RequestedCount != DefaultBatchLimit {
		t.Fatalf("expected default limit, got %d", run.RequestedCount)
	}
}

func TestProcessBatchSingleFlight(t *testing.T) {
	store := openStore(t)
	submit(t, store, "https://example.edu/slow")
	fetcher := &fakeFetcher{
		pages:   map[string]string{"https://example.edu/slow": "Slow Award"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := newTestService(t, store, fetcher, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.ProcessBatch(context.Background(), 1)
		done <- err
	}()
	<-fetcher.started

	if _, err := svc.ProcessBatch(context.Background(), 1); !errors.Is(err, ErrBatchInProgress) {
		t.Fatalf("expected ErrBatchInProgress, got %v", err)
	}
	if !svc.Running() {
		t.Fatalf("expected Running to report true")
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if svc.Running() {
		t.Fatalf("expected Running to be false after completion")
	}
}

func TestProcessBatchAbortsOnListFailure(t *testing.T) {
	store := openStore(t)
	svc, err := NewService(Deps{
		Links:     failingLinks{LinkStore: store},
		Catalog:   store,
		Fetcher:   &fakeFetcher{},
		Extractor: fakeExtractor{},
	}, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.ProcessBatch(context.Background(), 5)
	if !domain.IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if svc.Running() {
		t.Fatalf("flag must be released after an aborted run")
	}
}

func TestPreviewDoesNotMutate(t *testing.T) {
	store := openStore(t)
	submit(t, store, "https://example.edu/1", "https://example.edu/2", "https://example.edu/3")
	fetcher := &fakeFetcher{}
	svc := newTestService(t, store, fetcher, nil)

	links, err := svc.Preview(context.Background(), 2)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(links) != 2 || links[0].URL != "https://example.edu/1" {
		t.Fatalf("unexpected preview %#v", links)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("preview must not fetch")
	}
	pending, _ := store.ListUnprocessed(context.Background(), 10)
	if len(pending) != 3 {
		t.Fatalf("preview must not mark links, %d pending", len(pending))
	}
}

func TestProcessURLReportsFetchFailure(t *testing.T) {
	store := openStore(t)
	fetcher := &fakeFetcher{errs: map[string]error{
		"https://blocked.example": &domain.FetchError{Kind: domain.FetchForbidden, Status: 403},
	}}
	svc := newTestService(t, store, fetcher, nil)

	res := svc.ProcessURL(context.Background(), "https://blocked.example")
	if res.OK || res.Reason != domain.ReasonContentFetchFailed {
		t.Fatalf("unexpected result %#v", res)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("ProcessURL must not write to the catalog")
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, def, want int }{
		{0, 10, 10},
		{-3, 0, DefaultBatchLimit},
		{7, 10, 7},
		{500, 10, MaxBatchLimit},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in, tc.def); got != tc.want {
			t.Fatalf("ClampLimit(%d, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}
