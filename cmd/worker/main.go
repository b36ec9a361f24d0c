package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/securhealth/portal/internal/app"
	jobmetrics "github.com/securhealth/portal/internal/jobs"
	"github.com/securhealth/portal/internal/observability"
	"github.com/securhealth/portal/internal/platform/cache"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/jobs"
)

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

	resolved, err := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}.RedisOptions()
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	redisOpts := asynq.RedisClientOpt{Addr: resolved.Addr, Password: resolved.Password, DB: resolved.DB}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	oracle := risk.NewClient(cfg.RiskOracleURL, cfg.RiskTimeout, logger, risk.WithObserver(metrics))

	feedbackJob := jobs.NewRiskFeedbackJob(oracle, logger, jobMetrics)
	probeJob := jobs.NewOracleProbeJob(oracle, logger, jobMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:     redisOpts,
		Logger:        logger,
		FeedbackQueue: cfg.FeedbackQueue,
		Concurrency:   cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRiskFeedback, Handler: feedbackJob.Handle},
			{Type: jobs.TaskOracleProbe, Handler: probeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OracleProbeSpec, Task: jobs.NewOracleProbeTask(), Options: []asynq.Option{
				asynq.Queue(jobs.QueueDefault),
				asynq.MaxRetry(0),
				asynq.Unique(time.Minute),
			}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("queue", cfg.FeedbackQueue))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
