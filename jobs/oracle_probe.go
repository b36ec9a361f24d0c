package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/securhealth/portal/internal/jobs"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/risk"
)

// Scorer is the part of the oracle client the probe needs.
type Scorer interface {
	Score(ctx context.Context, features risk.Features) (risk.Verdict, error)
}

// OracleProbeJob scores a synthetic request so oracle outages show up in
// metrics even when no user is active.
type OracleProbeJob struct {
	Scorer  Scorer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOracleProbeJob initialises the probe.
func NewOracleProbeJob(scorer Scorer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OracleProbeJob {
	return &OracleProbeJob{Scorer: scorer, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle runs one probe. A failed probe is not retried; the next tick runs
// a fresh one.
func (j *OracleProbeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Scorer == nil {
		return errors.New("oracle probe: handler not configured")
	}
	tracker := j.Metrics.Track(TaskOracleProbe)
	defer func() { err = tracker.End(err) }()

	features := risk.BuildFeatures(
		policy.Identity{Role: "probe"},
		risk.Resource{MimeType: "application/octet-stream", SecurityLevel: risk.LevelRestricted},
		"probe",
		j.clock(),
	)
	if _, err := j.Scorer.Score(ctx, features); err != nil {
		logger := j.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("risk oracle probe failed", slog.Any("error", err))
		return errors.Join(err, asynq.SkipRetry)
	}
	return nil
}
