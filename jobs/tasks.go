package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueRefresh recomputes bill aging for one business (or all).
	TaskOverdueRefresh = "ap:overdue_refresh"
	// TaskScheduleSweep flips past-date payment schedules to overdue.
	TaskScheduleSweep = "ap:schedule_sweep"
)

// SweepPayload scopes a sweep task. BusinessID 0 means every business with
// payable activity.
type SweepPayload struct {
	BusinessID int64 `json:"business_id"`
}

// NewOverdueRefreshTask constructs an overdue refresh task.
func NewOverdueRefreshTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueRefresh, data), nil
}

// NewScheduleSweepTask constructs a schedule due-sweep task.
func NewScheduleSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleSweep, data), nil
}
