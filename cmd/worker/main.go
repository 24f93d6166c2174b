package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/clearway-fin/clearway/internal/app"
	"github.com/clearway-fin/clearway/internal/audit"
	"github.com/clearway-fin/clearway/internal/escalation"
	jobmetrics "github.com/clearway-fin/clearway/internal/jobs"
	"github.com/clearway-fin/clearway/internal/notify"
	"github.com/clearway-fin/clearway/internal/platform/cache"
	"github.com/clearway-fin/clearway/internal/platform/db"
	"github.com/clearway-fin/clearway/internal/scheduler"
	"github.com/clearway-fin/clearway/internal/workflow"
	"github.com/clearway-fin/clearway/jobs"
)

const taskEscalationSweep scheduler.TaskType = "escalation:sweep"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	sweeper := escalation.NewService(escalation.ServiceConfig{
		Repo:        workflow.NewRepository(pool),
		Managers:    escalation.NewManagerDirectory(pool),
		Notifier:    notify.NewQueueNotifier(queueClient, logger),
		Audit:       audit.NewPGRecorder(pool, logger),
		Logger:      logger,
		Concurrency: cfg.EscalationConcurrency,
	})

	// Only one worker instance may run the sweep at a time. The lease is
	// checked on every fire so a standby takes over when the holder dies.
	lease := scheduler.NewLease(redisClient, cfg.LeaderKey, cfg.LeaderTTL)

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Logger:   logger,
		Recorder: scheduler.NewPGRecorder(pool, logger),
		Tick:     cfg.SchedulerTick,
	})
	err = runner.Register(scheduler.TaskConfig{
		Type:       taskEscalationSweep,
		Cron:       cfg.EscalationCron,
		Timeout:    cfg.EscalationTimeout,
		MaxRetries: 2,
		RetryDelay: cfg.SchedulerTick,
	}, func(ctx context.Context) error {
		leading, err := lease.Acquire(ctx)
		if err != nil {
			return err
		}
		if !leading {
			return nil
		}
		tracker := metrics.Track(string(taskEscalationSweep))
		report, err := sweeper.Run(ctx)
		if err != nil {
			return tracker.End(err)
		}
		metrics.AddEscalations("", report.Escalated)
		logger.Info("escalation sweep",
			slog.Int("scanned", report.Scanned),
			slog.Int("escalated", report.Escalated),
		)
		return tracker.End(nil)
	})
	if err != nil {
		logger.Error("register escalation sweep", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runner.Run(groupCtx)
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	err = group.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), cfg.LeaderTTL)
	defer cancel()
	if releaseErr := lease.Release(releaseCtx); releaseErr != nil {
		logger.Warn("release leader lease", slog.Any("error", releaseErr))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
