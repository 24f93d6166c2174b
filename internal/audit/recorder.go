// Package audit provides the append-only audit trail written after every
// workflow state transition.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit record.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    int64
	Meta       map[string]any
	At         time.Time
}

// Recorder appends audit entries. Recording failures are swallowed by
// implementations: the trail is best-effort and never blocks a transition.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// PGRecorder writes entries into the audit_logs table.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGRecorder constructs a PGRecorder.
func NewPGRecorder(pool *pgxpool.Pool, logger *slog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

// Record persists the entry, logging and swallowing any failure.
func (r *PGRecorder) Record(ctx context.Context, entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		r.logger.Warn("audit meta marshal", slog.Any("error", err))
		metaJSON = []byte("{}")
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (correlation_id, actor_id, action, entity_type, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, metaJSON, entry.At)
	if err != nil {
		r.logger.Warn("audit record",
			slog.String("action", entry.Action),
			slog.String("entity", entry.EntityType),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err),
		)
	}
}

// NopRecorder discards entries. It backs tests that do not assert on audit.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}
