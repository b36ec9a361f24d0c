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

	"github.com/securhealth/portal/internal/access"
	"github.com/securhealth/portal/internal/admin"
	"github.com/securhealth/portal/internal/app"
	"github.com/securhealth/portal/internal/audit"
	audithttp "github.com/securhealth/portal/internal/audit/http"
	"github.com/securhealth/portal/internal/auth"
	authhttp "github.com/securhealth/portal/internal/auth/http"
	"github.com/securhealth/portal/internal/files"
	fileshttp "github.com/securhealth/portal/internal/files/http"
	"github.com/securhealth/portal/internal/observability"
	"github.com/securhealth/portal/internal/platform/cache"
	"github.com/securhealth/portal/internal/platform/db"
	"github.com/securhealth/portal/internal/risk"
	"github.com/securhealth/portal/internal/shares"
	shareshttp "github.com/securhealth/portal/internal/shares/http"
	"github.com/securhealth/portal/jobs"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	blobs, err := files.NewObjectStore(files.ObjectStoreConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		logger.Error("init object store", slog.Any("error", err))
		os.Exit(1)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		logger.Error("ensure bucket", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	credentials, err := auth.NewCredentials(cfg.JWTSecret, cfg.JWTTTL, cfg.BcryptCost)
	if err != nil {
		logger.Error("init credentials", slog.Any("error", err))
		os.Exit(1)
	}
	revocations := auth.NewRevocations(redisClient)
	userRepo := auth.NewRepository(dbpool)
	accountService := auth.NewService(userRepo, credentials, revocations)

	auditStore := audit.NewPGStore(dbpool)
	recorder := audit.NewRecorder(auditStore, logger, metrics)
	auditService := audit.NewService(auditStore, cfg.AuditQueryLimit)

	fileRepo := files.NewRepository(dbpool)
	fileService := files.NewService(fileRepo)
	shareRepo := shares.NewRepository(dbpool)

	oracle := risk.NewClient(cfg.RiskOracleURL, cfg.RiskTimeout, logger, risk.WithObserver(metrics))

	resolved, err := redisOpts.RedisOptions()
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	asynqOpts := asynq.RedisClientOpt{Addr: resolved.Addr, Password: resolved.Password, DB: resolved.DB}
	queue := jobs.NewClient(asynqOpts, cfg.FeedbackQueue)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynqOpts)
	defer func() { _ = inspector.Close() }()

	var feedback access.FeedbackPublisher = risk.NewQueuePublisher(queue, logger)
	if !cfg.FeedbackAsync {
		feedback = risk.NewDirectPublisher(oracle, logger)
	}

	gate, err := access.NewGate(access.Deps{
		Accounts:     userRepo,
		Passwords:    credentials,
		Tokens:       credentials,
		Files:        fileRepo,
		Shares:       shareRepo,
		Blobs:        blobs,
		Scorer:       oracle,
		Feedback:     feedback,
		Auditor:      recorder,
		Observer:     metrics,
		Logger:       logger,
		SignedURLTTL: cfg.SignedURLTTL,
	})
	if err != nil {
		logger.Error("init access gate", slog.Any("error", err))
		os.Exit(1)
	}
	guard := auth.NewMiddleware(credentials, revocations, gate, logger)

	summary := admin.NewService(admin.Sources{
		Files:      fileService.Count,
		Users:      accountService.CountUsers,
		Anomalies:  auditService.AnomalyCount,
		AuthDenied: auditService.DeniedLogins,
	}, redisClient, 30*time.Second, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Metrics:       metrics,
		Guard:         guard,
		AuthHandler:   authhttp.NewHandler(logger, accountService, gate, credentials, guard),
		FilesHandler:  fileshttp.NewHandler(logger, gate, fileService, shareRepo, guard, cfg.UploadMaxBytes),
		SharesHandler: shareshttp.NewHandler(logger, gate, shareRepo, guard),
		AuditHandler:  audithttp.NewHandler(logger, auditService, guard),
		AdminHandler:  admin.NewHandler(logger, summary, fileService, guard),
		JobHandler:    jobs.NewHandler(inspector, cfg.FeedbackQueue, logger),
		Readiness: map[string]app.ReadinessCheck{
			"postgres": func(ctx context.Context) error { return db.Ready(ctx, dbpool) },
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
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
