package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePeriodClose is the task type for scheduled period closings.
	TaskTypePeriodClose = "ledger:period_close"
	// TaskTypeGLIntegrity is the task type for the nightly balance sweep.
	TaskTypeGLIntegrity = "ledger:gl_integrity"
)

// PeriodClosePayload describes a requested close or reclose of one month.
type PeriodClosePayload struct {
	RunID           string `json:"run_id"`
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	EquityAccountID int64  `json:"equity_account_id"`
	Note            string `json:"note,omitempty"`
	Reclose         bool   `json:"reclose,omitempty"`
	RequestedBy     *int64 `json:"requested_by,omitempty"`
}

// NewPeriodCloseTask constructs an Asynq task. A missing run id is assigned
// so retries of the same submission stay correlated in logs.
func NewPeriodCloseTask(payload PeriodClosePayload) (*asynq.Task, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePeriodClose, data), nil
}

// NewGLIntegrityTask constructs the nightly integrity sweep task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGLIntegrity, nil)
}
