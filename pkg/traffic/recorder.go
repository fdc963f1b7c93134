package traffic

import (
	"context"
	"sync"
	"time"
)

// Recorder receives every counted outcome of a run.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, o Outcome) error

func (f RecorderFunc) Record(ctx context.Context, o Outcome) error { return f(ctx, o) }

const defaultTrackerSize = 100

// Tracker keeps a live summary and the most recent outcomes so they can be
// read while the loop is running.
type Tracker struct {
	mu      sync.RWMutex
	summary Summary
	recent  []Outcome
	next    int
	full    bool
}

// NewTracker returns a tracker keeping up to size recent outcomes.
func NewTracker(runID string, size int) *Tracker {
	if size < 1 {
		size = defaultTrackerSize
	}
	return &Tracker{
		summary: newSummary(runID, time.Now()),
		recent:  make([]Outcome, size),
	}
}

func (t *Tracker) Record(_ context.Context, o Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.add(o)
	t.summary.Iterations = o.Iteration
	t.summary.Duration = time.Since(t.summary.StartedAt)

	t.recent[t.next] = o
	t.next = (t.next + 1) % len(t.recent)
	if t.next == 0 {
		t.full = true
	}
	return nil
}

// Finish stores the final summary of the run.
func (t *Tracker) Finish(s Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = s.clone()
}

// RunID identifies the tracked run.
func (t *Tracker) RunID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summary.RunID
}

// Snapshot returns a copy of the live summary.
func (t *Tracker) Snapshot() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summary.clone()
}

// Recent returns up to limit outcomes, newest first. limit <= 0 means all.
func (t *Tracker) Recent(limit int) []Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.next
	if t.full {
		n = len(t.recent)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Outcome, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (t.next - i + len(t.recent)) % len(t.recent)
		out = append(out, t.recent[idx])
	}
	return out
}
