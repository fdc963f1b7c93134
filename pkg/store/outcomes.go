package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// AppendOutcome stores one outcome of runID.
func (s *Store) AppendOutcome(ctx context.Context, runID string, o traffic.Outcome) error {
	ts := o.At
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, iteration, action, succeeded, class, http_status, detail, raw_body, latency_ns, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, o.Iteration, o.Action, o.Succeeded, string(o.Class), o.HTTPStatus, o.Detail, o.RawBody, int64(o.Latency), ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns the latest outcomes across all runs, newest first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	return s.QueryOutcomes(ctx, OutcomeFilter{Limit: limit})
}

// QueryOutcomes returns outcomes matching f, newest first.
func (s *Store) QueryOutcomes(ctx context.Context, f OutcomeFilter) ([]OutcomeRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.Class != "" {
		where = append(where, "class = ?")
		args = append(args, string(f.Class))
	}
	if !f.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT id, run_id, iteration, action, succeeded, class, http_status, detail, raw_body, latency_ns, ts FROM outcomes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			rec     OutcomeRecord
			class   string
			latency int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Iteration, &rec.Action, &rec.Succeeded, &class,
			&rec.HTTPStatus, &rec.Detail, &rec.RawBody, &latency, &rec.At); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		rec.Class = traffic.Class(class)
		rec.Latency = time.Duration(latency)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActionStats aggregates outcomes per action. An empty runID covers all runs.
func (s *Store) ActionStats(ctx context.Context, runID string) ([]ActionStat, error) {
	query := `
		SELECT action, COUNT(*), SUM(succeeded), COALESCE(AVG(latency_ns), 0), COALESCE(MAX(latency_ns), 0)
		FROM outcomes`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " GROUP BY action ORDER BY action"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate outcomes: %w", err)
	}
	defer rows.Close()

	var stats []ActionStat
	for rows.Next() {
		var (
			st       ActionStat
			mean     float64
			maxNanos int64
		)
		if err := rows.Scan(&st.Action, &st.Invocations, &st.Succeeded, &mean, &maxNanos); err != nil {
			return nil, fmt.Errorf("failed to scan action stats: %w", err)
		}
		st.Failed = st.Invocations - st.Succeeded
		st.MeanLatency = time.Duration(mean)
		st.MaxLatency = time.Duration(maxNanos)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Recorder returns a traffic.Recorder that appends outcomes to runID.
func (s *Store) Recorder(runID string) traffic.Recorder {
	return traffic.RecorderFunc(func(ctx context.Context, o traffic.Outcome) error {
		return s.AppendOutcome(ctx, runID, o)
	})
}
