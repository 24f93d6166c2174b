package workflow

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearway-fin/clearway/internal/platform/httpx"
	"github.com/clearway-fin/clearway/internal/sla"
)

// Handler manages approval workflow endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers workflow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/{id}/submit", h.submit)
	r.Post("/invoices/{id}/decision", h.decide)
	r.Get("/invoices/{id}/approvals", h.listApprovals)
	r.Get("/invoices/{id}/sla", h.slaStatus)
	r.Get("/approvals/pending", h.pendingForActor)
	r.Get("/reports/sla-aging", h.slaAging)
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT ESCALATE"`
	Note     string `json:"note" validate:"max=1000"`
}

type invoiceResponse struct {
	ID                int64      `json:"id"`
	Number            string     `json:"number"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	Department        string     `json:"department,omitempty"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	CurrentStage      *int       `json:"current_stage,omitempty"`
	CurrentApproverID *int64     `json:"current_approver_id,omitempty"`
	FullyApproved     bool       `json:"fully_approved"`
	ReadyForPayment   bool       `json:"ready_for_payment"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type approvalResponse struct {
	ID          int64      `json:"id"`
	InvoiceID   int64      `json:"invoice_id"`
	Role        string     `json:"role"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	Sequence    int        `json:"sequence"`
	TotalStages int        `json:"total_stages"`
	Status      string     `json:"status"`
	SLADeadline *time.Time `json:"sla_deadline,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Escalated   bool       `json:"escalated"`
}

func invoiceView(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                inv.ID,
		Number:            inv.Number,
		Amount:            inv.Amount,
		Currency:          inv.Currency,
		Department:        inv.Department,
		Priority:          inv.Priority,
		Status:            string(inv.Status),
		CurrentStage:      inv.CurrentStage,
		CurrentApproverID: inv.CurrentApproverID,
		FullyApproved:     inv.FullyApproved,
		ReadyForPayment:   inv.ReadyForPayment,
		UpdatedAt:         inv.UpdatedAt,
	}
}

func approvalView(a Approval) approvalResponse {
	return approvalResponse{
		ID:          a.ID,
		InvoiceID:   a.InvoiceID,
		Role:        a.Role,
		ApproverID:  a.ApproverID,
		Sequence:    a.Sequence,
		TotalStages: a.TotalStages,
		Status:      string(a.Status),
		SLADeadline: a.SLADeadline,
		ActivatedAt: a.ActivatedAt,
		DecidedAt:   a.DecidedAt,
		Escalated:   a.Escalated,
	}
}

// submit routes a pending invoice into its approval chain.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Initiate(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceView(inv))
}

// decide records an approver's verdict on the invoice's active stage.
func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	inv, err := h.service.Decide(r.Context(), id, Decision(req.Decision), req.Note, actorID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceView(inv))
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	approvals, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]approvalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, approvalView(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) slaStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	result, err := h.service.SLAStatus(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"deadline":                 result.Deadline,
		"target_minutes":           result.TargetMinutes,
		"elapsed_business_minutes": result.ElapsedBusinessMinutes,
		"elapsed_calendar_minutes": result.ElapsedCalendarMinutes,
		"holidays":                 result.Holidays,
		"breached":                 result.Breached,
		"remaining_minutes":        result.RemainingMinutes,
	})
}

// pendingForActor lists the caller's active assignments ordered by deadline.
func (h *Handler) pendingForActor(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	approvals, err := h.service.PendingFor(r.Context(), actorID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	out := make([]approvalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, approvalView(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) slaAging(w http.ResponseWriter, r *http.Request) {
	bucket, err := h.service.SLAAging(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return 0, false
	}
	return id, true
}

// actorID reads the authenticated user id injected by the gateway.
func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Actor-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing or invalid X-Actor-ID header")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var wfErr *Error
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrApprovalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &wfErr):
		switch wfErr.Code {
		case CodeInvalidTransition:
			httpx.Problem(w, http.StatusConflict, "Invalid Transition", wfErr.Message)
		case CodeNoApprover, CodeNoChain:
			httpx.Problem(w, http.StatusUnprocessableEntity, string(wfErr.Code), wfErr.Message)
		default:
			httpx.Problem(w, http.StatusUnprocessableEntity, string(wfErr.Code), wfErr.Message)
		}
	case errors.As(err, new(*sla.CalcError)):
		httpx.Problem(w, http.StatusBadRequest, "SLA Calculation Failed", err.Error())
	default:
		h.logger.Error("workflow handler", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
