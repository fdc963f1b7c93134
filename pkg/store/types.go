package store

import (
	"time"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// Run is one row of the runs table.
type Run struct {
	ID          string     `json:"run_id"`
	Target      string     `json:"target"`
	Seed        int64      `json:"seed"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Iterations  int        `json:"iterations"`
	Interrupted bool       `json:"interrupted"`
}

// OutcomeRecord is a stored outcome.
type OutcomeRecord struct {
	ID    int64  `json:"id"`
	RunID string `json:"run_id"`
	traffic.Outcome
}

// OutcomeFilter narrows QueryOutcomes. Zero fields match everything.
type OutcomeFilter struct {
	RunID  string
	Action string
	Class  traffic.Class
	From   time.Time
	To     time.Time
	Limit  int
}

// ActionStat aggregates the stored outcomes of one action.
type ActionStat struct {
	Action      string        `json:"action"`
	Invocations int64         `json:"invocations"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	MeanLatency time.Duration `json:"mean_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
}
