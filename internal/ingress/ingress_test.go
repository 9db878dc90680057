package ingress

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
)

func startIntake(t *testing.T) (*Intake, storage.Store) {
	t.Helper()
	store, err := storage.NewStore("bbolt", filepath.Join(t.TempDir(), "intake.db"), storage.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	intake := NewIntake(store, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = intake.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = store.Close()
	})
	return intake, store
}

func TestIntakeStoresOnceUnderConcurrency(t *testing.T) {
	intake, store := startIntake(t)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan domain.StoreResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := intake.Submit(context.Background(), Submission{URL: "https://example.edu/award", Actor: "u1", Source: "test"})
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	ok, dup := 0, 0
	for r := range results {
		switch {
		case r.OK:
			ok++
		case r.Reason == domain.ReasonDuplicate:
			dup++
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Fatalf("expected 1 stored and %d duplicates, got %d/%d", workers-1, ok, dup)
	}

	pending, err := store.ListUnprocessed(context.Background(), 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending link, got %d (%v)", len(pending), err)
	}
}

func TestIntakeSubmitAllReportsPerURL(t *testing.T) {
	intake, _ := startIntake(t)

	results, err := intake.SubmitAll(context.Background(), []string{
		"https://example.edu/a",
		"ftp://example.edu/b",
		"https://example.edu/a#apply",
	}, "hook", "webhook:zapier")
	if err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	if !results[0].OK || results[1].Reason != domain.ReasonInvalidURL || results[2].Reason != domain.ReasonDuplicate {
		t.Fatalf("unexpected results %#v", results)
	}
}

func TestIntakeSubmitAfterStop(t *testing.T) {
	store, err := storage.NewStore("bbolt", filepath.Join(t.TempDir(), "closed.db"), storage.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	intake := NewIntake(store, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = intake.Run(ctx)

	submitCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	_, err = intake.Submit(submitCtx, Submission{URL: "https://example.edu/late"})
	if !errors.Is(err, ErrIntakeClosed) {
		t.Fatalf("expected ErrIntakeClosed, got %v", err)
	}
}

func TestExtractURLs(t *testing.T) {
	text := "New one! <https://example.edu/award?id=1>, also see https://foo.org/a_(b)." +
		" [form](https://forms.example.com/x) and https://example.edu/award?id=1 again; bare http:// ignored"
	got := ExtractURLs(text)
	want := []string{
		"https://example.edu/award?id=1",
		"https://foo.org/a_(b)",
		"https://forms.example.com/x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractURLs = %#v, want %#v", got, want)
	}
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []Submission
}

func (r *recordingSubmitter) Submit(_ context.Context, sub Submission) (domain.StoreResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
	return domain.StoreResult{OK: true, URL: sub.URL}, nil
}

type memorySeen struct {
	keys map[string]bool
	err  error
}

func (m *memorySeen) MarkSeen(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func TestMessageScannerFiltersAndDeduplicates(t *testing.T) {
	sub := &recordingSubmitter{}
	seen := &memorySeen{keys: map[string]bool{}}
	scanner := NewMessageScanner(sub, seen, []string{"scholarships"}, nil)
	ctx := context.Background()

	msg := ChatMessage{ID: "m1", ChannelID: "scholarships", AuthorID: "u1", Content: "look https://example.edu/award"}

	res, err := scanner.Scan(ctx, ChatMessage{ID: "m0", ChannelID: "general", Content: msg.Content})
	if err != nil || res.IgnoreReason != IgnoreChannel {
		t.Fatalf("expected channel filter, got %#v %v", res, err)
	}
	res, _ = scanner.Scan(ctx, ChatMessage{ID: "m2", ChannelID: "scholarships", AuthorIsBot: true, Content: msg.Content})
	if res.IgnoreReason != IgnoreBot {
		t.Fatalf("expected bot filter, got %#v", res)
	}
	res, _ = scanner.Scan(ctx, ChatMessage{ID: "m3", ChannelID: "scholarships", Content: "no links here"})
	if res.IgnoreReason != IgnoreNoLinks {
		t.Fatalf("expected no_links, got %#v", res)
	}

	res, err = scanner.Scan(ctx, msg)
	if err != nil || res.Ignored || len(res.Results) != 1 {
		t.Fatalf("expected submission, got %#v %v", res, err)
	}
	res, _ = scanner.Scan(ctx, msg)
	if res.IgnoreReason != IgnoreDuplicate {
		t.Fatalf("expected duplicate message, got %#v", res)
	}

	if len(sub.subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(sub.subs))
	}
	if got := sub.subs[0]; got.Source != "message:m1" || got.Actor != "u1" {
		t.Fatalf("unexpected submission %#v", got)
	}
}

func TestMessageScannerSeenSetFailure(t *testing.T) {
	scanner := NewMessageScanner(&recordingSubmitter{}, &memorySeen{err: errors.New("redis down")}, nil, nil)
	_, err := scanner.Scan(context.Background(), ChatMessage{ID: "m1", Content: "https://example.edu"})
	if err == nil {
		t.Fatalf("expected seen-set error")
	}
}
