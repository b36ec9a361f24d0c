package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/risk"
)

// Worker drains the feedback queue and fires scheduled probes.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules task on spec (cron syntax or "@every d").
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig configures NewWorker. Zero values fall back to the
// feedback queue, five workers and slog.Default.
type WorkerConfig struct {
	RedisOpts     asynq.RedisClientOpt
	Logger        *slog.Logger
	FeedbackQueue string
	Concurrency   int
	Handlers      []TaskHandler
	Cron          []CronRegistration
}

// NewWorker builds the server and, when Cron is set, the scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.FeedbackQueue == "" {
		cfg.FeedbackQueue = QueueFeedback
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.FeedbackQueue: 3,
			QueueDefault:      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			cfg.Logger.Warn("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled or the server stops on its own.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.logger.Info("draining worker")
	w.server.Shutdown()
	return ctx.Err()
}

// Client enqueues feedback for the worker.
type Client struct {
	client        *asynq.Client
	feedbackQueue string
}

// NewClient constructs an Asynq client. An empty queue uses QueueFeedback.
func NewClient(redisOpts asynq.RedisClientOpt, feedbackQueue string) *Client {
	if feedbackQueue == "" {
		feedbackQueue = QueueFeedback
	}
	return &Client{client: asynq.NewClient(redisOpts), feedbackQueue: feedbackQueue}
}

// EnqueueFeedback queues one oracle feedback delivery.
func (c *Client) EnqueueFeedback(ctx context.Context, req risk.FeedbackRequest) error {
	task, err := NewRiskFeedbackTask(req)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.feedbackQueue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ risk.Enqueuer = (*Client)(nil)

// Handler reports feedback queue backlog.
type Handler struct {
	inspector *asynq.Inspector
	queue     string
	logger    *slog.Logger
}

// NewHandler builds the queue health handler. inspector may be nil.
func NewHandler(inspector *asynq.Inspector, queue string, logger *slog.Logger) *Handler {
	if queue == "" {
		queue = QueueFeedback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, queue: queue, logger: logger}
}

// MountRoutes registers GET /health on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Retry   int    `json:"retry"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := queueHealth{Queue: h.queue}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(h.queue)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Error(w, http.StatusServiceUnavailable, "Queue unavailable")
			return
		}
		out.Pending, out.Retry = info.Pending, info.Retry
	}
	httpx.JSON(w, http.StatusOK, out)
}
