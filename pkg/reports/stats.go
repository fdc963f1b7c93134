package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/store"
)

// StatsReport aggregates outcomes per action.
type StatsReport struct {
	store ReportStore
}

// NewStatsReport creates a new StatsReport generator.
func NewStatsReport(s ReportStore) *StatsReport {
	return &StatsReport{store: s}
}

func (r *StatsReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	stats, err := r.store.ActionStats(ctx, params.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action stats: %w", err)
	}

	headers := []string{"action", "invocations", "succeeded", "failed", "success_rate", "mean_latency_ms", "max_latency_ms"}
	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rate := 0.0
		if st.Invocations > 0 {
			rate = float64(st.Succeeded) / float64(st.Invocations)
		}
		rows = append(rows, []string{
			st.Action,
			strconv.FormatInt(st.Invocations, 10),
			strconv.FormatInt(st.Succeeded, 10),
			strconv.FormatInt(st.Failed, 10),
			strconv.FormatFloat(rate, 'f', 3, 64),
			millis(st.MeanLatency),
			millis(st.MaxLatency),
		})
	}

	if stats == nil {
		stats = []store.ActionStat{}
	}
	return render(params.Format, headers, rows, stats)
}

// RunsReport lists recent runs.
type RunsReport struct {
	store ReportStore
}

// NewRunsReport creates a new RunsReport generator.
func NewRunsReport(s ReportStore) *RunsReport {
	return &RunsReport{store: s}
}

func (r *RunsReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	runs, err := r.store.ListRuns(ctx, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	headers := []string{"run_id", "target", "seed", "started_at", "finished_at", "iterations", "interrupted"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			run.ID,
			run.Target,
			strconv.FormatInt(run.Seed, 10),
			run.StartedAt.UTC().Format(time.RFC3339),
			finished,
			strconv.Itoa(run.Iterations),
			strconv.FormatBool(run.Interrupted),
		})
	}

	if runs == nil {
		runs = []store.Run{}
	}
	return render(params.Format, headers, rows, runs)
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
}
