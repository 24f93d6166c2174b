package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrailFilters narrows a trail query. Zero values are ignored.
type TrailFilters struct {
	EntityType string
	EntityID   string
	Action     string
	ActorID    int64
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// Logged is one persisted audit record.
type Logged struct {
	ID            int64          `json:"id"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	ActorID       int64          `json:"actor_id"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Meta          map[string]any `json:"meta,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// PagingInfo describes the window a TrailResult covers.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// TrailResult wraps one page of trail rows.
type TrailResult struct {
	Rows   []Logged   `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// Trail reads the audit trail back out of audit_logs.
type Trail struct {
	pool *pgxpool.Pool
}

// NewTrail constructs a Trail reader.
func NewTrail(pool *pgxpool.Pool) *Trail {
	return &Trail{pool: pool}
}

// List returns one page of matching entries, newest first. One extra row is
// fetched to decide HasNext without a count query.
func (t *Trail) List(ctx context.Context, filters TrailFilters) (TrailResult, error) {
	if t.pool == nil {
		return TrailResult{}, fmt.Errorf("audit: pool not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	query, args := buildTrailQuery(filters, pageSize, (page-1)*pageSize)

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return TrailResult{}, err
	}
	defer rows.Close()

	var out []Logged
	for rows.Next() {
		var entry Logged
		if err := rows.Scan(&entry.ID, &entry.CorrelationID, &entry.ActorID,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Meta, &entry.OccurredAt); err != nil {
			return TrailResult{}, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return TrailResult{}, err
	}

	hasNext := len(out) > pageSize
	if hasNext {
		out = out[:pageSize]
	}
	return TrailResult{
		Rows:   out,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

func buildTrailQuery(filters TrailFilters, pageSize, offset int) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filters.EntityType != "" {
		add("entity_type = $%d", filters.EntityType)
	}
	if filters.EntityID != "" {
		add("entity_id = $%d", filters.EntityID)
	}
	if filters.Action != "" {
		add("action = $%d", filters.Action)
	}
	if filters.ActorID > 0 {
		add("actor_id = $%d", filters.ActorID)
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To)
	}

	query := `SELECT id, correlation_id, actor_id, action, entity_type, entity_id, meta, occurred_at
FROM audit_logs`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, pageSize+1)
	query += fmt.Sprintf("\nORDER BY occurred_at DESC, id DESC\nLIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))
	return query, args
}
