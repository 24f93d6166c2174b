package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType tags a registered task. Handlers are bound at wiring time in a
// compile-time registration table, never resolved from strings at runtime.
type TaskType string

// Handler executes one task run. Handlers must poll ctx between units of work
// (e.g. between invoices in a batch), never mid-mutation.
type Handler func(ctx context.Context) error

// Failure reasons carried by TaskError.
const (
	ReasonTimeout   = "TIMEOUT"
	ReasonNoHandler = "NO_HANDLER"
	ReasonHandler   = "HANDLER_FAILED"
)

// TaskError is a per-run failure. It is recorded on the task and drives the
// retry policy; it never terminates the runner loop.
type TaskError struct {
	Type   TaskType
	Reason string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("task %s: %s", e.Type, e.Reason)
}

func (e *TaskError) Unwrap() error { return e.Err }

// RunStatus is the outcome of one task run.
type RunStatus string

const (
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunTimedOut  RunStatus = "TIMEOUT"
)

// RunRecord describes one completed run for ops inspection.
type RunRecord struct {
	ID         uuid.UUID `json:"id"`
	Type       TaskType  `json:"task_type"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	NextRun    time.Time `json:"next_run"`
}

// RunRecorder persists run records. Recording is best-effort.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord)
}

// NopRecorder discards run records.
type NopRecorder struct{}

func (NopRecorder) RecordRun(context.Context, RunRecord) {}

// TaskConfig declares one scheduled task.
type TaskConfig struct {
	Type       TaskType
	Cron       string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type task struct {
	cfg      TaskConfig
	handler  Handler
	schedule *CronSchedule

	mu      sync.Mutex
	nextRun time.Time
}

// Supervisor owns the registry of running tasks: a cancellation handle is
// inserted when a run starts and removed when it finishes, so nothing leaks
// across ticks. It also doubles as the per-task re-entrancy guard.
type Supervisor struct {
	mu      sync.Mutex
	running map[TaskType]context.CancelFunc
}

// NewSupervisor constructs an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{running: make(map[TaskType]context.CancelFunc)}
}

// begin registers a run and returns false when the task is already running.
func (s *Supervisor) begin(t TaskType, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[t]; ok {
		return false
	}
	s.running[t] = cancel
	return true
}

func (s *Supervisor) end(t TaskType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, t)
}

// IsRunning reports whether a run of the task is in flight.
func (s *Supervisor) IsRunning(t TaskType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[t]
	return ok
}

// Stop aborts every in-flight run. Handlers observe the cancellation at their
// next batch boundary.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, cancel := range s.running {
		cancel()
		delete(s.running, t)
	}
}

// Runner executes registered tasks on their cron schedules.
type Runner struct {
	logger     *slog.Logger
	recorder   RunRecorder
	supervisor *Supervisor
	now        func() time.Time
	tick       time.Duration

	mu    sync.Mutex
	tasks map[TaskType]*task
}

// RunnerConfig groups Runner dependencies.
type RunnerConfig struct {
	Logger   *slog.Logger
	Recorder RunRecorder
	Clock    func() time.Time
	Tick     time.Duration
}

// NewRunner constructs an empty Runner. Tick defaults to 30s.
func NewRunner(cfg RunnerConfig) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Runner{
		logger:     cfg.Logger,
		recorder:   recorder,
		supervisor: NewSupervisor(),
		now:        clock,
		tick:       tick,
		tasks:      make(map[TaskType]*task),
	}
}

// Supervisor exposes the running-task registry.
func (r *Runner) Supervisor() *Supervisor { return r.supervisor }

// Register binds a handler to a task type and cron schedule. A nil handler is
// a NO_HANDLER error surfaced now rather than a crash later.
func (r *Runner) Register(cfg TaskConfig, h Handler) error {
	if h == nil {
		return &TaskError{Type: cfg.Type, Reason: ReasonNoHandler}
	}
	schedule, err := ParseCron(cfg.Cron)
	if err != nil {
		return err
	}
	next, err := schedule.Next(r.now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[cfg.Type]; ok {
		return fmt.Errorf("scheduler: task %s already registered", cfg.Type)
	}
	r.tasks[cfg.Type] = &task{cfg: cfg, handler: h, schedule: schedule, nextRun: next}
	return nil
}

// Run drives the tick loop until ctx is cancelled. Task failures are recorded
// and retried per task config; they never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.supervisor.Stop()
			return ctx.Err()
		case <-ticker.C:
			r.dispatchDue(ctx)
		}
	}
}

func (r *Runner) dispatchDue(ctx context.Context) {
	now := r.now()
	r.mu.Lock()
	due := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		t.mu.Lock()
		if !t.nextRun.After(now) {
			due = append(due, t)
		}
		t.mu.Unlock()
	}
	r.mu.Unlock()
	for _, t := range due {
		go r.Execute(ctx, t.cfg.Type)
	}
}

// Execute runs one task now: timeout-wrapped, retried on failure, recorded,
// and rescheduled by its cron expression. A run already in flight is skipped
// via the supervisor's re-entrancy guard.
func (r *Runner) Execute(ctx context.Context, taskType TaskType) {
	r.mu.Lock()
	t, ok := r.tasks[taskType]
	r.mu.Unlock()
	if !ok {
		r.logger.Error("task not registered", slog.String("task", string(taskType)))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.supervisor.begin(taskType, cancel) {
		r.logger.Debug("task already running", slog.String("task", string(taskType)))
		return
	}
	defer r.supervisor.end(taskType)

	started := r.now()
	attempts := 0
	var lastErr error
	status := RunSucceeded

	for attempts <= t.cfg.MaxRetries {
		attempts++
		lastErr = r.attempt(runCtx, t)
		if lastErr == nil {
			break
		}
		var taskErr *TaskError
		if errors.As(lastErr, &taskErr) && taskErr.Reason == ReasonTimeout {
			status = RunTimedOut
		} else {
			status = RunFailed
		}
		r.logger.Warn("task attempt failed",
			slog.String("task", string(taskType)),
			slog.Int("attempt", attempts),
			slog.Any("error", lastErr),
		)
		if attempts > t.cfg.MaxRetries {
			break
		}
		select {
		case <-runCtx.Done():
			attempts = t.cfg.MaxRetries + 1
		case <-time.After(t.cfg.RetryDelay):
		}
	}
	if lastErr == nil {
		status = RunSucceeded
	}

	next, err := t.schedule.Next(r.now())
	if err != nil {
		r.logger.Error("reschedule task", slog.String("task", string(taskType)), slog.Any("error", err))
	}
	t.mu.Lock()
	t.nextRun = next
	t.mu.Unlock()

	rec := RunRecord{
		ID:         uuid.New(),
		Type:       taskType,
		StartedAt:  started,
		FinishedAt: r.now(),
		Status:     status,
		Attempts:   attempts,
		NextRun:    next,
	}
	if lastErr != nil {
		rec.Error = lastErr.Error()
	}
	r.recorder.RecordRun(ctx, rec)
}

// attempt runs the handler once under the task's wall-clock timeout. Overrun
// aborts the handler's context and reports a retryable TIMEOUT failure.
func (r *Runner) attempt(ctx context.Context, t *task) error {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if t.cfg.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.handler(attemptCtx)
	}()
	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &TaskError{Type: t.cfg.Type, Reason: ReasonTimeout, Err: err}
			}
			return &TaskError{Type: t.cfg.Type, Reason: ReasonHandler, Err: err}
		}
		return nil
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return &TaskError{Type: t.cfg.Type, Reason: ReasonTimeout, Err: attemptCtx.Err()}
		}
		return &TaskError{Type: t.cfg.Type, Reason: ReasonHandler, Err: attemptCtx.Err()}
	}
}
