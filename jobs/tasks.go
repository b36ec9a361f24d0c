package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/securhealth/portal/internal/risk"
)

const (
	// QueueDefault is the queue for housekeeping tasks.
	QueueDefault = "default"
	// QueueFeedback is the default queue for oracle feedback.
	QueueFeedback = "feedback"
	// TaskRiskFeedback delivers one action outcome to the risk oracle.
	TaskRiskFeedback = "risk:feedback"
	// TaskOracleProbe checks that the risk oracle still answers.
	TaskOracleProbe = "risk:probe"
)

// NewRiskFeedbackTask wraps req in a task.
func NewRiskFeedbackTask(req risk.FeedbackRequest) (*asynq.Task, error) {
	if req.Outcome != risk.OutcomeNormal && req.Outcome != risk.OutcomeAnomaly {
		return nil, fmt.Errorf("jobs: unknown feedback outcome %q", req.Outcome)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRiskFeedback, data), nil
}

// NewOracleProbeTask builds the periodic oracle probe.
func NewOracleProbeTask() *asynq.Task {
	return asynq.NewTask(TaskOracleProbe, nil)
}
