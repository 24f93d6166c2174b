package scheduler

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRecorder persists task run records into scheduled_task_runs for ops
// inspection. Failures only log: a lost record never blocks the runner.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGRecorder constructs a PGRecorder.
func NewPGRecorder(pool *pgxpool.Pool, logger *slog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

func (r *PGRecorder) RecordRun(ctx context.Context, rec RunRecord) {
	_, err := r.pool.Exec(ctx, `INSERT INTO scheduled_task_runs
(id, task_type, started_at, finished_at, status, attempts, error, next_run)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Type, rec.StartedAt, rec.FinishedAt, rec.Status, rec.Attempts, rec.Error, rec.NextRun)
	if err != nil {
		r.logger.Warn("record task run",
			slog.String("task", string(rec.Type)),
			slog.Any("error", err),
		)
	}
}

// LastRuns returns the most recent run per task type, newest first.
func (r *PGRecorder) LastRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (task_type)
id, task_type, started_at, finished_at, status, attempts, error, next_run
FROM scheduled_task_runs
ORDER BY task_type, finished_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.StartedAt, &rec.FinishedAt,
			&rec.Status, &rec.Attempts, &rec.Error, &rec.NextRun); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
