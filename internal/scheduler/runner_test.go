package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []RunRecord
}

func (r *captureRecorder) RecordRun(ctx context.Context, rec RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *captureRecorder) last(t *testing.T) RunRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.records)
	return r.records[len(r.records)-1]
}

func newTestRunner(rec RunRecorder) *Runner {
	return NewRunner(RunnerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: rec,
		Tick:     time.Hour, // tests call Execute directly
	})
}

func TestRegisterRejectsNilHandler(t *testing.T) {
	r := newTestRunner(nil)
	err := r.Register(TaskConfig{Type: "sweep", Cron: "* * * * *"}, nil)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, ReasonNoHandler, taskErr.Reason)
}

func TestRegisterRejectsBadCron(t *testing.T) {
	r := newTestRunner(nil)
	err := r.Register(TaskConfig{Type: "sweep", Cron: "nope"}, func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestExecuteSuccess(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRunner(rec)
	var calls atomic.Int32
	require.NoError(t, r.Register(TaskConfig{Type: "sweep", Cron: "* * * * *", Timeout: time.Second},
		func(context.Context) error {
			calls.Add(1)
			return nil
		}))

	r.Execute(context.Background(), "sweep")

	require.Equal(t, int32(1), calls.Load())
	got := rec.last(t)
	require.Equal(t, RunSucceeded, got.Status)
	require.Equal(t, 1, got.Attempts)
	require.False(t, got.NextRun.IsZero())
}

func TestExecuteRetriesThenFails(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRunner(rec)
	var calls atomic.Int32
	require.NoError(t, r.Register(TaskConfig{
		Type:       "sweep",
		Cron:       "* * * * *",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, func(context.Context) error {
		calls.Add(1)
		return errors.New("store unavailable")
	}))

	r.Execute(context.Background(), "sweep")

	require.Equal(t, int32(3), calls.Load()) // initial try + 2 retries
	got := rec.last(t)
	require.Equal(t, RunFailed, got.Status)
	require.Equal(t, 3, got.Attempts)
	require.Contains(t, got.Error, "store unavailable")
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRunner(rec)
	var calls atomic.Int32
	require.NoError(t, r.Register(TaskConfig{
		Type:       "sweep",
		Cron:       "* * * * *",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, func(context.Context) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	}))

	r.Execute(context.Background(), "sweep")

	got := rec.last(t)
	require.Equal(t, RunSucceeded, got.Status)
	require.Equal(t, 2, got.Attempts)
}

func TestExecuteTimesOut(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRunner(rec)
	require.NoError(t, r.Register(TaskConfig{
		Type:    "sweep",
		Cron:    "* * * * *",
		Timeout: 20 * time.Millisecond,
	}, func(ctx context.Context) error {
		<-ctx.Done() // cooperative handler: stop at the abort signal
		return ctx.Err()
	}))

	r.Execute(context.Background(), "sweep")

	got := rec.last(t)
	require.Equal(t, RunTimedOut, got.Status)
}

func TestExecuteSkipsReentrantRun(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRunner(rec)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, r.Register(TaskConfig{Type: "sweep", Cron: "* * * * *"},
		func(context.Context) error {
			calls.Add(1)
			close(started)
			<-release
			return nil
		}))

	go r.Execute(context.Background(), "sweep")
	<-started
	require.True(t, r.Supervisor().IsRunning("sweep"))

	// A second trigger while the first run is in flight is a no-op.
	r.Execute(context.Background(), "sweep")
	require.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool {
		return !r.Supervisor().IsRunning("sweep")
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisorStopCancelsRunningTasks(t *testing.T) {
	r := newTestRunner(&captureRecorder{})
	started := make(chan struct{})
	stopped := make(chan struct{})
	require.NoError(t, r.Register(TaskConfig{Type: "sweep", Cron: "* * * * *"},
		func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}))

	go r.Execute(context.Background(), "sweep")
	<-started
	r.Supervisor().Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("handler did not observe cancellation")
	}
	require.False(t, r.Supervisor().IsRunning("sweep"))
}
