package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/clearway-fin/clearway/internal/notify"
	"github.com/clearway-fin/clearway/internal/platform/httpx"
	"github.com/clearway-fin/clearway/internal/scheduler"
)

// Worker wraps the asynq server processing delivery tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance. The critical queue gets strict
// priority over routine notifications.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		StrictPriority: true,
	})
	mux := asynq.NewServeMux()
	deliverer := &NotificationDeliverer{Logger: cfg.Logger}
	mux.HandleFunc(TaskTypeDeliverNotification, deliverer.Handle)
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits delivery tasks to the queue. It satisfies notify.Enqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueNotification queues one message for background delivery.
func (c *Client) EnqueueNotification(ctx context.Context, msg notify.Message) error {
	task, err := NewDeliverNotificationTask(msg)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(queueFor(msg.Priority)), asynq.MaxRetry(5))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ notify.Enqueuer = (*Client)(nil)

// RunLister reads back scheduled task run history.
type RunLister interface {
	LastRuns(ctx context.Context, limit int) ([]scheduler.RunRecord, error)
}

// Handler exposes HTTP endpoints for queue and scheduler observability.
type Handler struct {
	inspector *asynq.Inspector
	runs      RunLister
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, runs RunLister, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, runs: runs, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/runs", h.lastRuns)
}

// lastRuns reports the most recent scheduler run per task type.
func (h *Handler) lastRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httpx.JSON(w, http.StatusOK, []scheduler.RunRecord{})
		return
	}
	records, err := h.runs.LastRuns(r.Context(), 20)
	if err != nil {
		h.logger.Warn("list task runs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []scheduler.RunRecord{}
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.inspector == nil {
		_, _ = w.Write([]byte(`{"queues":{}}`))
		return
	}
	out := `{"queues":{`
	for i, queue := range []string{QueueCritical, QueueDefault} {
		info, err := h.inspector.GetQueueInfo(queue)
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if i > 0 {
			out += ","
		}
		out += `"` + info.Queue + `":` + strconv.Itoa(info.Pending)
	}
	out += "}}"
	_, _ = w.Write([]byte(out))
}
