package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clearway-fin/clearway/internal/audit"
	"github.com/clearway-fin/clearway/internal/calendar"
	"github.com/clearway-fin/clearway/internal/observability"
	"github.com/clearway-fin/clearway/internal/platform/httpx"
	"github.com/clearway-fin/clearway/internal/workflow"
	"github.com/clearway-fin/clearway/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	WorkflowHandler *workflow.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
	Holidays        []calendar.Holiday
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		params.WorkflowHandler.MountRoutes(r)
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		r.Get("/calendar/holidays", holidayListHandler(params.Holidays))
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type holidayView struct {
	Date     string `json:"date"`
	Observed string `json:"observed,omitempty"`
	Name     string `json:"name"`
	Partial  *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"partial,omitempty"`
}

// holidayListHandler serves the configured holiday calendar. The set is fixed
// at startup, so the response is assembled once.
func holidayListHandler(holidays []calendar.Holiday) http.HandlerFunc {
	out := make([]holidayView, 0, len(holidays))
	for _, h := range holidays {
		view := holidayView{
			Date: h.Date.Format("2006-01-02"),
			Name: h.Name,
		}
		if h.Observed != nil {
			view.Observed = h.Observed.Format("2006-01-02")
		}
		if h.Partial != nil {
			view.Partial = &struct {
				Start string `json:"start"`
				End   string `json:"end"`
			}{Start: h.Partial.Start, End: h.Partial.End}
		}
		out = append(out, view)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, out)
	}
}
