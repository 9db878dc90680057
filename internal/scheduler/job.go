package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
)

// ErrSkipped is returned by TryRun when the previous run has not finished.
var ErrSkipped = errors.New("job skipped: previous run still in progress")

// JobStatus is a snapshot of a job's state.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Skips     int       `json:"skips"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Job guards one kind of background work against overlapping itself. A
// tick that arrives while a run is in flight is dropped, not queued.
type Job struct {
	name       string
	inProgress atomic.Bool

	mu      sync.Mutex
	runs    int
	skips   int
	lastRun time.Time
	lastErr error
}

// NewJob returns an idle job.
func NewJob(name string) *Job {
	return &Job{name: name}
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// TryRun executes fn unless a run is already in progress.
func (j *Job) TryRun(ctx context.Context, fn func(context.Context) error) error {
	if !j.inProgress.CompareAndSwap(false, true) {
		j.mu.Lock()
		j.skips++
		j.mu.Unlock()
		metrics.JobRuns.WithLabelValues(j.name, "skipped").Inc()
		return ErrSkipped
	}
	defer j.inProgress.Store(false)

	started := time.Now()
	err := fn(ctx)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveJob(j.name, result, started)

	j.mu.Lock()
	j.runs++
	j.lastRun = started
	j.lastErr = err
	j.mu.Unlock()
	return err
}

// Running reports whether a run is in flight.
func (j *Job) Running() bool { return j.inProgress.Load() }

// Status returns a snapshot of the job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:    j.name,
		Running: j.inProgress.Load(),
		Runs:    j.runs,
		Skips:   j.skips,
		LastRun: j.lastRun,
	}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	return st
}
