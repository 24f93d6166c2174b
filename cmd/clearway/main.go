package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clearway-fin/clearway/internal/app"
	"github.com/clearway-fin/clearway/internal/audit"
	"github.com/clearway-fin/clearway/internal/notify"
	"github.com/clearway-fin/clearway/internal/observability"
	"github.com/clearway-fin/clearway/internal/platform/db"
	"github.com/clearway-fin/clearway/internal/routing"
	"github.com/clearway-fin/clearway/internal/scheduler"
	"github.com/clearway-fin/clearway/internal/sla"
	"github.com/clearway-fin/clearway/internal/workflow"
	"github.com/clearway-fin/clearway/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	settings, err := app.LoadSettings(cfg.SettingsPath)
	if err != nil {
		logger.Error("load settings", slog.Any("error", err))
		os.Exit(1)
	}
	policy, err := settings.Policy()
	if err != nil {
		logger.Error("build sla policy", slog.Any("error", err))
		os.Exit(1)
	}
	chainCfg, err := settings.ChainConfig()
	if err != nil {
		logger.Error("build chain config", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	router, err := routing.NewRouter(chainCfg)
	if err != nil {
		logger.Error("build router", slog.Any("error", err))
		os.Exit(1)
	}
	calculator, err := sla.NewCalculator(policy, nil)
	if err != nil {
		logger.Error("build sla calculator", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	notifier := notify.NewQueueNotifier(queueClient, logger)

	service := workflow.NewService(workflow.ServiceConfig{
		Repo:     workflow.NewRepository(pool),
		Router:   router,
		Balancer: routing.NewBalancer(routing.NewDirectory(pool)),
		SLA:      calculator,
		Notifier: notifier,
		Audit:    audit.NewPGRecorder(pool, logger),
		Logger:   logger,
	})

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	handler := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		WorkflowHandler: workflow.NewHandler(logger, service),
		AuditHandler:    audit.NewHandler(logger, audit.NewTrail(pool)),
		JobHandler:      jobs.NewHandler(inspector, scheduler.NewPGRecorder(pool, logger), logger),
		Holidays:        policy.Holidays,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
