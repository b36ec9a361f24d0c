package risk

import (
	"context"
	"log/slog"
	"time"
)

// Enqueuer hands feedback to a background queue.
type Enqueuer interface {
	EnqueueFeedback(ctx context.Context, req FeedbackRequest) error
}

// FeedbackSender delivers feedback synchronously.
type FeedbackSender interface {
	Feedback(ctx context.Context, req FeedbackRequest) error
}

// QueuePublisher enqueues feedback for the worker. Publishing never blocks
// the caller and never fails the originating action.
type QueuePublisher struct {
	queue   Enqueuer
	logger  *slog.Logger
	timeout time.Duration
}

// NewQueuePublisher wires a publisher on top of the job queue.
func NewQueuePublisher(queue Enqueuer, logger *slog.Logger) *QueuePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuePublisher{queue: queue, logger: logger, timeout: 2 * time.Second}
}

// Publish enqueues req in the background.
func (p *QueuePublisher) Publish(ctx context.Context, req FeedbackRequest) {
	if p == nil || p.queue == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.queue.EnqueueFeedback(ctx, req); err != nil {
			p.logger.Warn("risk feedback enqueue failed",
				slog.String("outcome", req.Outcome),
				slog.Any("error", err),
			)
		}
	}()
}

// DirectPublisher posts feedback straight to the oracle. It is used when no
// queue is configured.
type DirectPublisher struct {
	sender FeedbackSender
	logger *slog.Logger
}

// NewDirectPublisher wires a publisher that calls the oracle directly.
func NewDirectPublisher(sender FeedbackSender, logger *slog.Logger) *DirectPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectPublisher{sender: sender, logger: logger}
}

// Publish sends req in the background.
func (p *DirectPublisher) Publish(ctx context.Context, req FeedbackRequest) {
	if p == nil || p.sender == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.sender.Feedback(ctx, req); err != nil {
			p.logger.Warn("risk feedback failed",
				slog.String("outcome", req.Outcome),
				slog.Any("error", err),
			)
		}
	}()
}
