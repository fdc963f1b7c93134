package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// BeginRun inserts a run row. It must precede AppendOutcome for that run.
func (s *Store) BeginRun(ctx context.Context, runID, target string, seed int64, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, target, seed, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, target, seed, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(ctx context.Context, sum traffic.Summary) error {
	finished := sum.StartedAt.Add(sum.Duration).UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, iterations = ?, interrupted = ?
		WHERE run_id = ?
	`, finished, sum.Iterations, sum.Interrupted, sum.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish %s: %w", sum.RunID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, target, seed, started_at, finished_at, iterations, interrupted
		FROM runs WHERE run_id = ?
	`, runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, target, seed, started_at, finished_at, iterations, interrupted
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.Target, &r.Seed, &r.StartedAt, &finished, &r.Iterations, &r.Interrupted); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
