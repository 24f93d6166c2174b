// Package workflow drives an invoice through its ordered approval chain:
// chain initiation, stage advancement, rejection and completion.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ApprovalStatus is the lifecycle state of one stage.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalActive    ApprovalStatus = "ACTIVE"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalEscalated ApprovalStatus = "ESCALATED"
)

// Terminal reports whether no further decision can land on the stage.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalEscalated
}

// InvoiceStatus is the workflow state of the invoice itself.
type InvoiceStatus string

const (
	InvoicePendingApproval InvoiceStatus = "PENDING_APPROVAL"
	InvoiceUnderReview     InvoiceStatus = "UNDER_REVIEW"
	InvoiceApproved        InvoiceStatus = "APPROVED"
	InvoiceRejected        InvoiceStatus = "REJECTED"
)

// Decision is a per-stage verdict from an approver.
type Decision string

const (
	DecisionApprove  Decision = "APPROVE"
	DecisionReject   Decision = "REJECT"
	DecisionEscalate Decision = "ESCALATE"
)

// Invoice carries the workflow-relevant subset of the invoice document.
type Invoice struct {
	ID                int64
	Number            string
	Amount            float64
	Currency          string
	Department        string
	Priority          string
	SubmittedBy       int64
	Status            InvoiceStatus
	CurrentStage      *int
	CurrentApproverID *int64
	FullyApproved     bool
	ReadyForPayment   bool
	InvoiceDate       time.Time
	DueDate           time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Approval is one stage instance in an invoice's chain. Sequence numbers are
// 1-based and contiguous up to TotalStages; the whole set is created in one
// transaction so a partial chain is never observable.
type Approval struct {
	ID           int64
	InvoiceID    int64
	Role         string
	ApproverID   *int64
	Sequence     int
	TotalStages  int
	Status       ApprovalStatus
	SLADeadline  *time.Time
	ActivatedAt  *time.Time
	DecidedAt    *time.Time
	DecisionNote string
	Escalated    bool
	EscalatedAt  *time.Time
	CreatedAt    time.Time
}

// Sentinel errors shared by repository implementations.
var (
	ErrInvoiceNotFound  = errors.New("workflow: invoice not found")
	ErrApprovalNotFound = errors.New("workflow: approval not found")
)

// ErrorCode classifies workflow failures.
type ErrorCode string

const (
	CodeNoApprover        ErrorCode = "NO_APPROVER"
	CodeNoChain           ErrorCode = "NO_CHAIN"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
)

// Error is a workflow-level failure. The operation it aborts leaves all prior
// persisted state untouched.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow: %s: %s", e.Code, e.Message)
}

func invalidTransition(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}
