package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/store"
)

// OutcomeReport lists stored outcomes, newest first.
type OutcomeReport struct {
	store ReportStore
}

// NewOutcomeReport creates a new OutcomeReport generator.
func NewOutcomeReport(s ReportStore) *OutcomeReport {
	return &OutcomeReport{store: s}
}

func (r *OutcomeReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	outcomes, err := r.store.QueryOutcomes(ctx, store.OutcomeFilter{
		RunID:  params.RunID,
		Action: params.Action,
		From:   params.Start,
		To:     params.End,
		Limit:  params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}

	headers := []string{"timestamp", "run_id", "iteration", "action", "succeeded", "class", "http_status", "latency_ms", "detail"}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.At.UTC().Format(time.RFC3339),
			o.RunID,
			strconv.Itoa(o.Iteration),
			o.Action,
			strconv.FormatBool(o.Succeeded),
			string(o.Class),
			strconv.Itoa(o.HTTPStatus),
			strconv.FormatFloat(float64(o.Latency)/float64(time.Millisecond), 'f', 2, 64),
			o.Detail,
		})
	}

	if outcomes == nil {
		outcomes = []store.OutcomeRecord{}
	}
	return render(params.Format, headers, rows, outcomes)
}
