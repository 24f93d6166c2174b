package escalation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure implementation
var _ ManagerDirectory = (*pgManagerDirectory)(nil)

type pgManagerDirectory struct {
	pool *pgxpool.Pool
}

// NewManagerDirectory returns the Postgres-backed escalation contact lookup.
func NewManagerDirectory(pool *pgxpool.Pool) ManagerDirectory {
	return &pgManagerDirectory{pool: pool}
}

func (d *pgManagerDirectory) EscalationContacts(ctx context.Context) ([]int64, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM approvers
WHERE escalation_contact = TRUE AND active = TRUE AND on_leave = FALSE
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
