package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/securhealth/portal/internal/jobs"
	"github.com/securhealth/portal/internal/risk"
)

// RiskFeedbackJob forwards queued outcomes to the oracle. Failed deliveries
// are retried by the queue.
type RiskFeedbackJob struct {
	Sender  risk.FeedbackSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRiskFeedbackJob initialises the feedback handler.
func NewRiskFeedbackJob(sender risk.FeedbackSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *RiskFeedbackJob {
	return &RiskFeedbackJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle delivers one feedback payload.
func (j *RiskFeedbackJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("risk feedback: handler not configured")
	}
	var req risk.FeedbackRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		j.logger().Warn("dropping malformed feedback payload", slog.Any("error", err))
		return fmt.Errorf("risk feedback: decode: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRiskFeedback)
	defer func() { err = tracker.End(err) }()

	if err := j.Sender.Feedback(ctx, req); err != nil {
		j.logger().Warn("risk feedback delivery failed",
			slog.String("outcome", req.Outcome),
			slog.Any("error", err),
		)
		return err
	}
	j.Metrics.Delivered(req.Outcome)
	return nil
}

func (j *RiskFeedbackJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
