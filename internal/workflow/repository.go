package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines workflow data access. Multi-row mutations run through
// WithTx; correctness-critical single-row transitions are conditional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetApproval(ctx context.Context, invoiceID int64, sequence int) (Approval, error)
	ListApprovals(ctx context.Context, invoiceID int64) ([]Approval, error)
	ListActiveForApprover(ctx context.Context, approverID int64) ([]Approval, error)
	// ListAllActive returns every ACTIVE stage across all invoices.
	ListAllActive(ctx context.Context) ([]Approval, error)
	// ListBreachedActive returns ACTIVE approvals whose deadline passed and
	// that have not been escalated yet.
	ListBreachedActive(ctx context.Context, asOf time.Time) ([]Approval, error)
	// MarkEscalated flips the escalation flag, conditional on it still being
	// false. Returns false when another tick got there first.
	MarkEscalated(ctx context.Context, approvalID int64, at time.Time) (bool, error)
}

// TxRepository defines the mutations available inside a transaction.
type TxRepository interface {
	// CreateApprovals persists a whole chain in one shot.
	CreateApprovals(ctx context.Context, approvals []Approval) error
	// ActivateApproval transitions a stage PENDING -> ACTIVE, assigning the
	// approver and fixing the SLA deadline. Returns false when the stage was
	// not PENDING, which makes concurrent advancement at-most-once.
	ActivateApproval(ctx context.Context, invoiceID int64, sequence int, approverID int64, deadline, at time.Time) (bool, error)
	// CompleteApproval transitions a stage ACTIVE -> to. Returns false when
	// the stage was not ACTIVE.
	CompleteApproval(ctx context.Context, invoiceID int64, sequence int, to ApprovalStatus, note string, at time.Time) (bool, error)
	// RejectOpenApprovals marks every non-terminal stage REJECTED and
	// returns how many rows changed.
	RejectOpenApprovals(ctx context.Context, invoiceID int64, reason string, at time.Time) (int, error)
	UpdateInvoiceWorkflow(ctx context.Context, upd InvoiceWorkflowUpdate) error
}

// InvoiceWorkflowUpdate is the writable workflow slice of an invoice row.
type InvoiceWorkflowUpdate struct {
	InvoiceID         int64
	Status            InvoiceStatus
	CurrentStage      *int
	CurrentApproverID *int64
	FullyApproved     bool
	ReadyForPayment   bool
}

// Ensure implementation
var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed workflow repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const invoiceColumns = `id, number, amount, currency, department, priority, submitted_by,
status, current_stage, current_approver_id, fully_approved, ready_for_payment,
invoice_date, due_date, created_at, updated_at`

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

const approvalColumns = `id, invoice_id, role, approver_id, sequence, total_stages, status,
sla_deadline, activated_at, decided_at, decision_note, is_escalated, escalated_at, created_at`

func (r *pgRepository) GetApproval(ctx context.Context, invoiceID int64, sequence int) (Approval, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+approvalColumns+`
FROM approvals WHERE invoice_id = $1 AND sequence = $2`, invoiceID, sequence)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approval{}, ErrApprovalNotFound
		}
		return Approval{}, err
	}
	return a, nil
}

func (r *pgRepository) ListApprovals(ctx context.Context, invoiceID int64) ([]Approval, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+approvalColumns+`
FROM approvals WHERE invoice_id = $1 ORDER BY sequence`, invoiceID)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *pgRepository) ListActiveForApprover(ctx context.Context, approverID int64) ([]Approval, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+approvalColumns+`
FROM approvals WHERE approver_id = $1 AND status = 'ACTIVE' ORDER BY sla_deadline`, approverID)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *pgRepository) ListAllActive(ctx context.Context) ([]Approval, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+approvalColumns+`
FROM approvals WHERE status = 'ACTIVE' ORDER BY sla_deadline`)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *pgRepository) ListBreachedActive(ctx context.Context, asOf time.Time) ([]Approval, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+approvalColumns+`
FROM approvals
WHERE status = 'ACTIVE' AND is_escalated = FALSE AND sla_deadline < $1
ORDER BY sla_deadline`, asOf)
	if err != nil {
		return nil, err
	}
	return collectApprovals(rows)
}

func (r *pgRepository) MarkEscalated(ctx context.Context, approvalID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE approvals
SET is_escalated = TRUE, escalated_at = $2
WHERE id = $1 AND is_escalated = FALSE`, approvalID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) CreateApprovals(ctx context.Context, approvals []Approval) error {
	for _, a := range approvals {
		_, err := t.tx.Exec(ctx, `INSERT INTO approvals
(invoice_id, role, approver_id, sequence, total_stages, status, sla_deadline, activated_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
			a.InvoiceID, a.Role, a.ApproverID, a.Sequence, a.TotalStages, a.Status, a.SLADeadline, a.ActivatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("approval chain for invoice %d already exists: %w", a.InvoiceID, err)
			}
			return err
		}
	}
	return nil
}

func (t *pgTxRepository) ActivateApproval(ctx context.Context, invoiceID int64, sequence int, approverID int64, deadline, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE approvals
SET status = 'ACTIVE', approver_id = $3, sla_deadline = $4, activated_at = $5
WHERE invoice_id = $1 AND sequence = $2 AND status = 'PENDING'`,
		invoiceID, sequence, approverID, deadline, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) CompleteApproval(ctx context.Context, invoiceID int64, sequence int, to ApprovalStatus, note string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE approvals
SET status = $3, decision_note = $4, decided_at = $5
WHERE invoice_id = $1 AND sequence = $2 AND status = 'ACTIVE'`,
		invoiceID, sequence, to, note, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) RejectOpenApprovals(ctx context.Context, invoiceID int64, reason string, at time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE approvals
SET status = 'REJECTED', decision_note = $2, decided_at = $3
WHERE invoice_id = $1 AND status IN ('PENDING', 'ACTIVE')`,
		invoiceID, reason, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTxRepository) UpdateInvoiceWorkflow(ctx context.Context, upd InvoiceWorkflowUpdate) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices
SET status = $2, current_stage = $3, current_approver_id = $4,
    fully_approved = $5, ready_for_payment = $6, updated_at = NOW()
WHERE id = $1`,
		upd.InvoiceID, upd.Status, upd.CurrentStage, upd.CurrentApproverID,
		upd.FullyApproved, upd.ReadyForPayment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Amount, &inv.Currency, &inv.Department,
		&inv.Priority, &inv.SubmittedBy, &inv.Status, &inv.CurrentStage, &inv.CurrentApproverID,
		&inv.FullyApproved, &inv.ReadyForPayment, &inv.InvoiceDate, &inv.DueDate,
		&inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func scanApproval(row pgx.Row) (Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.InvoiceID, &a.Role, &a.ApproverID, &a.Sequence, &a.TotalStages,
		&a.Status, &a.SLADeadline, &a.ActivatedAt, &a.DecidedAt, &a.DecisionNote,
		&a.Escalated, &a.EscalatedAt, &a.CreatedAt)
	return a, err
}

func collectApprovals(rows pgx.Rows) ([]Approval, error) {
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
