package routing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrApproverNotFound indicates the approver row does not exist.
var ErrApproverNotFound = errors.New("routing: approver not found")

const approverColumns = `id, name, role, approval_limit, workload, max_workload, active, on_leave, created_at`

// Ensure implementation
var _ Directory = (*pgDirectory)(nil)

type pgDirectory struct {
	pool *pgxpool.Pool
}

// NewDirectory returns the Postgres-backed approver directory.
func NewDirectory(pool *pgxpool.Pool) Directory {
	return &pgDirectory{pool: pool}
}

func (d *pgDirectory) ListByRole(ctx context.Context, role string) ([]Approver, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+approverColumns+`
FROM approvers WHERE role = $1 ORDER BY created_at, id`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approver
	for rows.Next() {
		a, err := scanApprover(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *pgDirectory) BackupForRole(ctx context.Context, role string) (Approver, bool, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+approverColumns+`
FROM approvers WHERE backup_for_role = $1 ORDER BY created_at, id LIMIT 1`, role)
	a, err := scanApprover(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approver{}, false, nil
		}
		return Approver{}, false, err
	}
	return a, true, nil
}

func (d *pgDirectory) CountActiveAssignments(ctx context.Context, approverID int64) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM approvals
WHERE approver_id = $1 AND status = 'ACTIVE'`, approverID).Scan(&n)
	return n, err
}

func (d *pgDirectory) SetWorkload(ctx context.Context, approverID int64, workload int) error {
	tag, err := d.pool.Exec(ctx, `UPDATE approvers SET workload = $2, updated_at = NOW()
WHERE id = $1`, approverID, workload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrApproverNotFound
	}
	return nil
}

// GetApprover loads one approver row.
func (d *pgDirectory) GetApprover(ctx context.Context, id int64) (Approver, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+approverColumns+` FROM approvers WHERE id = $1`, id)
	a, err := scanApprover(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approver{}, ErrApproverNotFound
		}
		return Approver{}, err
	}
	return a, nil
}

func scanApprover(row pgx.Row) (Approver, error) {
	var a Approver
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.ApprovalLimit, &a.Workload,
		&a.MaxWorkload, &a.Active, &a.OnLeave, &a.CreatedAt)
	return a, err
}
