package publishers

import (
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

// Event types emitted by the pipeline.
const (
	EventScholarshipAdded = "scholarship.added"
	EventBatchCompleted   = "batch.completed"
	EventSweepCompleted   = "sweep.completed"
)

// Event represents the payload published downstream.
type Event struct {
	Type        string                     `json:"type"`
	Scholarship *domain.ScholarshipRecord  `json:"scholarship,omitempty"`
	Batch       *domain.BatchRun           `json:"batch,omitempty"`
	Summary     *domain.Summary            `json:"summary,omitempty"`
	Removed     []domain.ScholarshipRecord `json:"removed,omitempty"`
	OccurredAt  time.Time                  `json:"occurred_at"`
}

// NewScholarshipAddedEvent announces a new catalog entry.
func NewScholarshipAddedEvent(rec domain.ScholarshipRecord) Event {
	return Event{
		Type:        EventScholarshipAdded,
		Scholarship: &rec,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewBatchCompletedEvent reports a finished batch run with its summary.
func NewBatchCompletedEvent(run domain.BatchRun) Event {
	summary := run.Summary()
	return Event{
		Type:       EventBatchCompleted,
		Batch:      &run,
		Summary:    &summary,
		OccurredAt: time.Now().UTC(),
	}
}

// NewSweepCompletedEvent lists the records removed by one sweep.
func NewSweepCompletedEvent(removed []domain.ScholarshipRecord) Event {
	return Event{
		Type:       EventSweepCompleted,
		Removed:    removed,
		OccurredAt: time.Now().UTC(),
	}
}
