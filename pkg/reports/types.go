package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/store"
)

type ReportType string

const (
	ReportTypeOutcomes ReportType = "outcomes"
	ReportTypeStats    ReportType = "stats"
	ReportTypeRuns     ReportType = "runs"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

type ReportParams struct {
	Format ReportFormat
	RunID  string
	Action string
	Start  time.Time
	End    time.Time
	Limit  int
}

// ReportStore defines the data access reports need.
type ReportStore interface {
	QueryOutcomes(ctx context.Context, filter store.OutcomeFilter) ([]store.OutcomeRecord, error)
	ActionStats(ctx context.Context, runID string) ([]store.ActionStat, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
