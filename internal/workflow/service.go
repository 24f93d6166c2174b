package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearway-fin/clearway/internal/audit"
	"github.com/clearway-fin/clearway/internal/notify"
	"github.com/clearway-fin/clearway/internal/routing"
	"github.com/clearway-fin/clearway/internal/sla"
)

// Service orchestrates the approval state machine.
type Service struct {
	repo     Repository
	router   *routing.Router
	balancer *routing.Balancer
	slacalc  *sla.Calculator
	notifier notify.Notifier
	audit    audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo     Repository
	Router   *routing.Router
	Balancer *routing.Balancer
	SLA      *sla.Calculator
	Notifier notify.Notifier
	Audit    audit.Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewService constructs the workflow service. Clock defaults to time.Now.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	aud := cfg.Audit
	if aud == nil {
		aud = audit.NopRecorder{}
	}
	return &Service{
		repo:     cfg.Repo,
		router:   cfg.Router,
		balancer: cfg.Balancer,
		slacalc:  cfg.SLA,
		notifier: cfg.Notifier,
		audit:    aud,
		logger:   cfg.Logger,
		now:      clock,
	}
}

// Initiate builds and persists the full approval chain for an invoice in
// PENDING_APPROVAL. Every tier must resolve to an approver (or backup) before
// anything is written; an unresolvable tier fails the whole initiation and no
// partial chain is ever observable. On success stage 1 is ACTIVE with its SLA
// deadline fixed, and the invoice moves to UNDER_REVIEW.
func (s *Service) Initiate(ctx context.Context, invoiceID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoicePendingApproval {
		return Invoice{}, invalidTransition("invoice %s is %s, expected %s", inv.Number, inv.Status, InvoicePendingApproval)
	}

	chain, err := s.router.Chain(inv.Amount, inv.Department)
	if err != nil || len(chain) == 0 {
		return Invoice{}, &Error{Code: CodeNoChain, Message: fmt.Sprintf("no approval chain for invoice %s", inv.Number)}
	}

	// Resolve every tier up front so a missing approver in a later tier
	// aborts before anything is persisted.
	resolved := make([]routing.Approver, len(chain))
	for i, tier := range chain {
		approver, err := s.balancer.ApproverForTier(ctx, tier, inv.Amount)
		if err != nil {
			var noApprover *routing.NoApproverError
			if errors.As(err, &noApprover) {
				return Invoice{}, &Error{Code: CodeNoApprover, Message: noApprover.Error()}
			}
			return Invoice{}, err
		}
		resolved[i] = approver
	}

	now := s.now()
	deadline, err := s.slacalc.ResponseDeadline(now, inv.Priority)
	if err != nil {
		return Invoice{}, err
	}

	first := resolved[0]
	stage1 := 1
	approvals := make([]Approval, len(chain))
	for i, tier := range chain {
		approvals[i] = Approval{
			InvoiceID:   inv.ID,
			Role:        tier.Role,
			Sequence:    i + 1,
			TotalStages: len(chain),
			Status:      ApprovalPending,
		}
	}
	approvals[0].Status = ApprovalActive
	approvals[0].ApproverID = &first.ID
	approvals[0].SLADeadline = &deadline.Deadline
	approvals[0].ActivatedAt = &now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CreateApprovals(ctx, approvals); err != nil {
			return err
		}
		return tx.UpdateInvoiceWorkflow(ctx, InvoiceWorkflowUpdate{
			InvoiceID:         inv.ID,
			Status:            InvoiceUnderReview,
			CurrentStage:      &stage1,
			CurrentApproverID: &first.ID,
		})
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recalcWorkload(ctx, first.ID)
	s.notifier.Notify(ctx, notify.Message{
		UserID:    first.ID,
		InvoiceID: inv.ID,
		Kind:      notify.KindApprovalRequested,
		Priority:  notify.PriorityNormal,
		Body:      fmt.Sprintf("invoice %s for %s awaits your approval", inv.Number, notify.FormatAmount(inv.Amount, inv.Currency)),
	})
	s.audit.Record(ctx, audit.Entry{
		Action:     "workflow.initiated",
		EntityType: "invoice",
		EntityID:   fmt.Sprint(inv.ID),
		Meta:       map[string]any{"stages": len(chain), "first_approver": first.ID},
	})

	return s.repo.GetInvoice(ctx, invoiceID)
}

// Advance activates the stage after the current one, or completes the
// workflow when no stage remains. Activation is a conditional PENDING->ACTIVE
// transition, so a concurrent duplicate trigger advances at most once.
func (s *Service) Advance(ctx context.Context, invoiceID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceUnderReview || inv.CurrentStage == nil {
		return Invoice{}, invalidTransition("invoice %s is not under review", inv.Number)
	}
	prevApprover := inv.CurrentApproverID
	nextSeq := *inv.CurrentStage + 1

	next, err := s.repo.GetApproval(ctx, invoiceID, nextSeq)
	if errors.Is(err, ErrApprovalNotFound) {
		return s.complete(ctx, inv, prevApprover)
	}
	if err != nil {
		return Invoice{}, err
	}

	approver, err := s.balancer.ApproverForTier(ctx, routing.Tier{Role: next.Role}, inv.Amount)
	if err != nil {
		var noApprover *routing.NoApproverError
		if errors.As(err, &noApprover) {
			return Invoice{}, &Error{Code: CodeNoApprover, Message: noApprover.Error()}
		}
		return Invoice{}, err
	}

	// Deadline is computed at this activation instant, not at initiation, so
	// later stages do not inherit time already burned by earlier ones.
	now := s.now()
	deadline, err := s.slacalc.ResponseDeadline(now, inv.Priority)
	if err != nil {
		return Invoice{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		activated, err := tx.ActivateApproval(ctx, invoiceID, nextSeq, approver.ID, deadline.Deadline, now)
		if err != nil {
			return err
		}
		if !activated {
			return invalidTransition("stage %d of invoice %s was already activated", nextSeq, inv.Number)
		}
		return tx.UpdateInvoiceWorkflow(ctx, InvoiceWorkflowUpdate{
			InvoiceID:         inv.ID,
			Status:            InvoiceUnderReview,
			CurrentStage:      &nextSeq,
			CurrentApproverID: &approver.ID,
		})
	})
	if err != nil {
		return Invoice{}, err
	}

	s.recalcWorkload(ctx, approver.ID)
	if prevApprover != nil {
		s.recalcWorkload(ctx, *prevApprover)
	}
	s.notifier.Notify(ctx, notify.Message{
		UserID:    approver.ID,
		InvoiceID: inv.ID,
		Kind:      notify.KindApprovalRequested,
		Priority:  notify.PriorityNormal,
		Body:      fmt.Sprintf("invoice %s for %s awaits your approval (stage %d of %d)", inv.Number, notify.FormatAmount(inv.Amount, inv.Currency), nextSeq, next.TotalStages),
	})
	s.audit.Record(ctx, audit.Entry{
		Action:     "workflow.advanced",
		EntityType: "invoice",
		EntityID:   fmt.Sprint(inv.ID),
		Meta:       map[string]any{"stage": nextSeq, "approver": approver.ID},
	})

	return s.repo.GetInvoice(ctx, invoiceID)
}

// complete finishes the workflow: all stages approved.
func (s *Service) complete(ctx context.Context, inv Invoice, prevApprover *int64) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceWorkflow(ctx, InvoiceWorkflowUpdate{
			InvoiceID:       inv.ID,
			Status:          InvoiceApproved,
			FullyApproved:   true,
			ReadyForPayment: true,
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	if prevApprover != nil {
		s.recalcWorkload(ctx, *prevApprover)
	}
	s.notifier.Notify(ctx, notify.Message{
		UserID:    inv.SubmittedBy,
		InvoiceID: inv.ID,
		Kind:      notify.KindInvoiceApproved,
		Priority:  notify.PriorityNormal,
		Body:      fmt.Sprintf("invoice %s is fully approved and ready for payment", inv.Number),
	})
	s.audit.Record(ctx, audit.Entry{
		Action:     "workflow.completed",
		EntityType: "invoice",
		EntityID:   fmt.Sprint(inv.ID),
	})
	return s.repo.GetInvoice(ctx, inv.ID)
}

// Reject terminates the workflow: every non-terminal stage is rejected in one
// transaction and the invoice becomes REJECTED. No further stage processing
// occurs.
func (s *Service) Reject(ctx context.Context, invoiceID int64, reason string, actorID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceUnderReview {
		return Invoice{}, invalidTransition("invoice %s is %s, expected %s", inv.Number, inv.Status, InvoiceUnderReview)
	}
	prevApprover := inv.CurrentApproverID

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.RejectOpenApprovals(ctx, invoiceID, reason, now); err != nil {
			return err
		}
		return tx.UpdateInvoiceWorkflow(ctx, InvoiceWorkflowUpdate{
			InvoiceID: inv.ID,
			Status:    InvoiceRejected,
		})
	})
	if err != nil {
		return Invoice{}, err
	}

	if prevApprover != nil {
		s.recalcWorkload(ctx, *prevApprover)
	}
	s.notifier.Notify(ctx, notify.Message{
		UserID:    inv.SubmittedBy,
		InvoiceID: inv.ID,
		Kind:      notify.KindInvoiceRejected,
		Priority:  notify.PriorityHigh,
		Body:      fmt.Sprintf("invoice %s was rejected: %s", inv.Number, reason),
	})
	s.audit.Record(ctx, audit.Entry{
		Action:     "workflow.rejected",
		EntityType: "invoice",
		EntityID:   fmt.Sprint(inv.ID),
		ActorID:    actorID,
		Meta:       map[string]any{"reason": reason},
	})

	return s.repo.GetInvoice(ctx, invoiceID)
}

// Decide records an approver's verdict on the invoice's current stage.
// APPROVE advances the chain, REJECT terminates it, ESCALATE marks the stage
// escalated and leaves the invoice under review for manual dispatch; no
// automatic re-routing rule exists for escalated stages.
func (s *Service) Decide(ctx context.Context, invoiceID int64, decision Decision, note string, actorID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceUnderReview || inv.CurrentStage == nil {
		return Invoice{}, invalidTransition("invoice %s is not under review", inv.Number)
	}
	seq := *inv.CurrentStage
	stage, err := s.repo.GetApproval(ctx, invoiceID, seq)
	if err != nil {
		return Invoice{}, err
	}
	if stage.Status != ApprovalActive {
		return Invoice{}, invalidTransition("stage %d of invoice %s is %s, expected %s", seq, inv.Number, stage.Status, ApprovalActive)
	}
	if stage.ApproverID == nil || *stage.ApproverID != actorID {
		return Invoice{}, invalidTransition("stage %d of invoice %s is not assigned to user %d", seq, inv.Number, actorID)
	}

	now := s.now()
	switch decision {
	case DecisionApprove:
		if err := s.completeStage(ctx, invoiceID, seq, ApprovalApproved, note, now, inv.Number); err != nil {
			return Invoice{}, err
		}
		s.audit.Record(ctx, audit.Entry{
			Action:     "stage.approved",
			EntityType: "approval",
			EntityID:   fmt.Sprint(stage.ID),
			ActorID:    actorID,
		})
		return s.Advance(ctx, invoiceID)

	case DecisionReject:
		return s.Reject(ctx, invoiceID, note, actorID)

	case DecisionEscalate:
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			done, err := tx.CompleteApproval(ctx, invoiceID, seq, ApprovalEscalated, note, now)
			if err != nil {
				return err
			}
			if !done {
				return invalidTransition("stage %d of invoice %s was already decided", seq, inv.Number)
			}
			// The invoice stays under review with no next actor; escalated
			// stages are dispatched manually.
			return tx.UpdateInvoiceWorkflow(ctx, InvoiceWorkflowUpdate{
				InvoiceID:    inv.ID,
				Status:       InvoiceUnderReview,
				CurrentStage: inv.CurrentStage,
			})
		})
		if err != nil {
			return Invoice{}, err
		}
		s.recalcWorkload(ctx, actorID)
		s.audit.Record(ctx, audit.Entry{
			Action:     "stage.escalated",
			EntityType: "approval",
			EntityID:   fmt.Sprint(stage.ID),
			ActorID:    actorID,
			Meta:       map[string]any{"note": note},
		})
		return s.repo.GetInvoice(ctx, invoiceID)

	default:
		return Invoice{}, invalidTransition("unknown decision %q", decision)
	}
}

func (s *Service) completeStage(ctx context.Context, invoiceID int64, seq int, to ApprovalStatus, note string, at time.Time, number string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		done, err := tx.CompleteApproval(ctx, invoiceID, seq, to, note, at)
		if err != nil {
			return err
		}
		if !done {
			return invalidTransition("stage %d of invoice %s was already decided", seq, number)
		}
		return nil
	})
}

// Approvals lists the full chain for an invoice.
func (s *Service) Approvals(ctx context.Context, invoiceID int64) ([]Approval, error) {
	return s.repo.ListApprovals(ctx, invoiceID)
}

// PendingFor lists the ACTIVE stages assigned to an approver, nearest SLA
// deadline first.
func (s *Service) PendingFor(ctx context.Context, approverID int64) ([]Approval, error) {
	return s.repo.ListActiveForApprover(ctx, approverID)
}

// SLAStatus reports the current stage's SLA state for an invoice.
func (s *Service) SLAStatus(ctx context.Context, invoiceID int64) (sla.Result, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return sla.Result{}, err
	}
	if inv.Status != InvoiceUnderReview || inv.CurrentStage == nil {
		return sla.Result{}, invalidTransition("invoice %s has no active stage", inv.Number)
	}
	stage, err := s.repo.GetApproval(ctx, invoiceID, *inv.CurrentStage)
	if err != nil {
		return sla.Result{}, err
	}
	if stage.ActivatedAt == nil {
		return sla.Result{}, invalidTransition("stage %d of invoice %s was never activated", stage.Sequence, inv.Number)
	}
	return s.slacalc.ResponseDeadline(*stage.ActivatedAt, inv.Priority)
}

// recalcWorkload refreshes a derived workload counter. Failures only log:
// the count is recomputable and must not abort a committed transition.
func (s *Service) recalcWorkload(ctx context.Context, approverID int64) {
	if _, err := s.balancer.RecalculateWorkload(ctx, approverID); err != nil {
		s.logger.Warn("recalculate workload", slog.Int64("approver_id", approverID), slog.Any("error", err))
	}
}
