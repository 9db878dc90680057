package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubPublisher struct {
	id     string
	err    error
	closed bool
	events []string
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return "stub" }
func (s *stubPublisher) Publish(_ context.Context, evt Event) error {
	s.events = append(s.events, evt.Type)
	return s.err
}

type closingPublisher struct{ stubPublisher }

func (c *closingPublisher) Close() error {
	c.closed = true
	return nil
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	ok := &stubPublisher{id: "ok"}
	bad := &stubPublisher{id: "bad", err: errors.New("queue down")}
	fanout := NewFanout([]Publisher{ok, nil, bad})

	if fanout.Size() != 2 {
		t.Fatalf("nil publishers should be dropped, size = %d", fanout.Size())
	}
	count, err := fanout.Publish(context.Background(), NewSweepCompletedEvent(nil))
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil || !strings.Contains(err.Error(), "publisher[bad]") {
		t.Fatalf("expected error naming the failed sink, got %v", err)
	}
	if len(bad.events) != 1 || len(ok.events) != 1 {
		t.Fatalf("a failing sink must not stop delivery to the others")
	}
}

func TestEmptyFanoutIsNoop(t *testing.T) {
	var nilFanout *Fanout
	for _, f := range []*Fanout{nilFanout, NewFanout(nil)} {
		count, err := f.Publish(context.Background(), NewSweepCompletedEvent(nil))
		if count != 0 || err != nil {
			t.Fatalf("expected no-op, got %d %v", count, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestFanoutCloseReachesClosers(t *testing.T) {
	c := &closingPublisher{stubPublisher{id: "pubsub"}}
	fanout := NewFanout([]Publisher{c, &stubPublisher{id: "http"}})
	if err := fanout.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.closed {
		t.Fatalf("closer was not closed")
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	pubs, err := BuildAll(context.Background(), DefaultRegistry(), []PublisherConfig{
		{ID: "catalog-hook", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://example.org/hooks/catalog"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 || pubs[0].ID() != "catalog-hook" {
		t.Fatalf("unexpected publishers %+v", pubs)
	}
}
