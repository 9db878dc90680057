// Package ingress funnels every link submission path (chat messages, the
// operator CLI, webhooks, discovery) through one queue into the link store.
package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
)

const defaultQueueSize = 64

// ErrIntakeClosed is returned when Submit is called after the consumer stopped.
var ErrIntakeClosed = errors.New("intake is closed")

// Submission is one URL offered to the link store.
type Submission struct {
	URL    string
	Actor  string
	Source string
}

// Submitter accepts submissions.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (domain.StoreResult, error)
}

type intakeRequest struct {
	ctx   context.Context
	sub   Submission
	reply chan intakeReply
}

type intakeReply struct {
	res domain.StoreResult
	err error
}

// Intake is a buffered queue with a single consumer that calls
// LinkStore.Store for each submission in arrival order.
type Intake struct {
	links storage.LinkStore
	queue chan intakeRequest
	done  chan struct{}
	log   logger.Logger
}

// NewIntake builds an intake. Run must be started before Submit is used.
func NewIntake(links storage.LinkStore, size int, log logger.Logger) *Intake {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Intake{
		links: links,
		queue: make(chan intakeRequest, size),
		done:  make(chan struct{}),
		log:   logger.Ensure(log),
	}
}

// Run consumes the queue until ctx ends.
func (i *Intake) Run(ctx context.Context) error {
	defer close(i.done)
	i.log.InfoObj("intake started", "intake_state", map[string]any{"queue_size": cap(i.queue)})

	for {
		select {
		case <-ctx.Done():
			i.drain(ctx.Err())
			i.log.InfoObj("intake stopped", "intake_state", map[string]any{"reason": ctx.Err().Error()})
			return nil
		case req := <-i.queue:
			req.reply <- i.store(req)
		}
	}
}

// drain fails anything still queued when the consumer stops.
func (i *Intake) drain(cause error) {
	for {
		select {
		case req := <-i.queue:
			req.reply <- intakeReply{err: fmt.Errorf("%w: %v", ErrIntakeClosed, cause)}
		default:
			return
		}
	}
}

func (i *Intake) store(req intakeRequest) intakeReply {
	if err := req.ctx.Err(); err != nil {
		return intakeReply{err: err}
	}

	res, err := i.links.Store(req.ctx, req.sub.URL, req.sub.Actor, req.sub.Source)
	switch {
	case err != nil:
		metrics.LinksSubmitted.WithLabelValues("error").Inc()
		i.log.ErrorObj("link store failed", "intake_error", map[string]any{
			"url":    req.sub.URL,
			"source": req.sub.Source,
			"error":  err.Error(),
		})
	case res.OK:
		metrics.LinksSubmitted.WithLabelValues("stored").Inc()
		i.log.InfoObj("link stored", "intake_link", map[string]any{
			"link_id": res.LinkID,
			"url":     res.URL,
			"source":  req.sub.Source,
		})
	default:
		metrics.LinksSubmitted.WithLabelValues(res.Reason).Inc()
		i.log.DebugObj("link not stored", "intake_link", map[string]any{
			"url":    req.sub.URL,
			"reason": res.Reason,
		})
	}
	return intakeReply{res: res, err: err}
}

// Submit enqueues sub and waits for the store decision.
func (i *Intake) Submit(ctx context.Context, sub Submission) (domain.StoreResult, error) {
	req := intakeRequest{ctx: ctx, sub: sub, reply: make(chan intakeReply, 1)}

	select {
	case i.queue <- req:
	case <-i.done:
		return domain.StoreResult{}, ErrIntakeClosed
	case <-ctx.Done():
		return domain.StoreResult{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return domain.StoreResult{}, ctx.Err()
	case <-i.done:
		select {
		case r := <-req.reply:
			return r.res, r.err
		default:
			return domain.StoreResult{}, ErrIntakeClosed
		}
	}
}

// SubmitAll submits each URL in order and returns one result per URL.
// Storage failures are reported per entry; the first one is also returned.
func (i *Intake) SubmitAll(ctx context.Context, urls []string, actor, source string) ([]domain.StoreResult, error) {
	out := make([]domain.StoreResult, 0, len(urls))
	var firstErr error
	for _, u := range urls {
		res, err := i.Submit(ctx, Submission{URL: u, Actor: actor, Source: source})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			res = domain.StoreResult{URL: u, Reason: err.Error()}
		}
		out = append(out, res)
	}
	return out, firstErr
}
