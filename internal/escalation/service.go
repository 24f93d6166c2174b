// Package escalation finds approval stages that blew their SLA deadline and
// drives the forced escalation path: flag, notify, audit.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearway-fin/clearway/internal/audit"
	"github.com/clearway-fin/clearway/internal/notify"
	"github.com/clearway-fin/clearway/internal/workflow"
)

// ManagerDirectory lists the organizational managers alerted on every
// escalation.
type ManagerDirectory interface {
	EscalationContacts(ctx context.Context) ([]int64, error)
}

// Report summarizes one escalation sweep.
type Report struct {
	Scanned   int
	Escalated int
}

// Service performs escalation sweeps. Sweeps are idempotent: the escalation
// flag is flipped with a conditional write, so a breached stage escalates
// exactly once no matter how many ticks observe it.
type Service struct {
	repo     workflow.Repository
	managers ManagerDirectory
	notifier notify.Notifier
	audit    audit.Recorder
	logger   *slog.Logger
	now      func() time.Time

	// concurrency caps the parallel per-stage work; stages are independent
	// across invoices.
	concurrency int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo        workflow.Repository
	Managers    ManagerDirectory
	Notifier    notify.Notifier
	Audit       audit.Recorder
	Logger      *slog.Logger
	Clock       func() time.Time
	Concurrency int
}

// NewService constructs the escalation service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	aud := cfg.Audit
	if aud == nil {
		aud = audit.NopRecorder{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		repo:        cfg.Repo,
		managers:    cfg.Managers,
		notifier:    cfg.Notifier,
		audit:       aud,
		logger:      cfg.Logger,
		now:         clock,
		concurrency: concurrency,
	}
}

// Run sweeps every ACTIVE stage past its deadline that has not been escalated
// yet. The handler contract requires polling cancellation between units of
// work, never mid-mutation: each stage is one unit.
func (s *Service) Run(ctx context.Context) (Report, error) {
	now := s.now()
	breached, err := s.repo.ListBreachedActive(ctx, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{Scanned: len(breached)}
	managers, err := s.managers.EscalationContacts(ctx)
	if err != nil {
		s.logger.Warn("load escalation contacts", slog.Any("error", err))
	}

	escalated := make(chan int64, len(breached))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, stage := range breached {
		stage := stage
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			won, err := s.repo.MarkEscalated(ctx, stage.ID, now)
			if err != nil {
				return fmt.Errorf("escalate approval %d: %w", stage.ID, err)
			}
			if !won {
				// Another tick or a racing decision already escalated it.
				return nil
			}
			escalated <- stage.ID
			s.notifyEscalation(ctx, stage, managers)
			s.audit.Record(ctx, audit.Entry{
				Action:     "stage.sla_escalated",
				EntityType: "approval",
				EntityID:   fmt.Sprint(stage.ID),
				Meta: map[string]any{
					"invoice_id": stage.InvoiceID,
					"sequence":   stage.Sequence,
					"deadline":   stage.SLADeadline,
				},
			})
			return nil
		})
	}
	err = g.Wait()
	close(escalated)
	report.Escalated = len(escalated)
	return report, err
}

func (s *Service) notifyEscalation(ctx context.Context, stage workflow.Approval, managers []int64) {
	if stage.ApproverID != nil {
		s.notifier.Notify(ctx, notify.Message{
			UserID:    *stage.ApproverID,
			InvoiceID: stage.InvoiceID,
			Kind:      notify.KindSLABreached,
			Priority:  notify.PriorityCritical,
			Body:      fmt.Sprintf("approval stage %d of invoice %d is past its SLA deadline", stage.Sequence, stage.InvoiceID),
		})
	}
	for _, managerID := range managers {
		s.notifier.Notify(ctx, notify.Message{
			UserID:    managerID,
			InvoiceID: stage.InvoiceID,
			Kind:      notify.KindManagerAlert,
			Priority:  notify.PriorityHigh,
			Body:      fmt.Sprintf("invoice %d is blocked on an overdue approval (stage %d)", stage.InvoiceID, stage.Sequence),
		})
	}
}
