package publishers

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

func TestBatchCompletedEventCarriesSummary(t *testing.T) {
	run := domain.BatchRun{
		ID:             "run-1",
		RequestedCount: 3,
		StartedAt:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Results: []domain.LinkOutcome{
			{LinkID: "1", Outcome: domain.OutcomeAdded},
			{LinkID: "2", Outcome: domain.OutcomeFailed, Reason: "timeout"},
			{LinkID: "3", Outcome: domain.OutcomeAdded},
		},
	}

	evt := NewBatchCompletedEvent(run)
	if evt.Type != EventBatchCompleted || evt.Summary.Added != 2 || evt.Summary.Failed != 1 {
		t.Fatalf("unexpected event %#v", evt)
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `"type":"batch.completed"`) || strings.Contains(body, `"scholarship"`) {
		t.Fatalf("unexpected payload %s", body)
	}
}
