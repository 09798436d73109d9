package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskLeadSyncRun = "leadsync.run"

const TaskLeadSyncDialer = "leadsync.dialer"

const TaskCursorReset = "leadsync.cursor_reset"

// runTaskTimeout bounds one pipeline run. Runs are never retried; the next tick picks up what is left.
const runTaskTimeout = 30 * time.Minute

type LeadSyncRunPayload struct {
	Trigger string `json:"trigger"`
}

type CursorResetPayload struct {
	WebsiteID string `json:"websiteId"`
	FormID    int64  `json:"formId"`
}

func NewLeadSyncRunTask(payload LeadSyncRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadSyncRun, data, asynq.MaxRetry(0), asynq.Timeout(runTaskTimeout)), nil
}

func NewLeadSyncDialerTask(payload LeadSyncRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadSyncDialer, data, asynq.MaxRetry(0), asynq.Timeout(runTaskTimeout)), nil
}

func ParseLeadSyncRunPayload(task *asynq.Task) (LeadSyncRunPayload, error) {
	var payload LeadSyncRunPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadSyncRunPayload{}, err
	}
	return payload, nil
}

func NewCursorResetTask(websiteID uuid.UUID, formID int64) (*asynq.Task, error) {
	data, err := json.Marshal(CursorResetPayload{WebsiteID: websiteID.String(), FormID: formID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCursorReset, data, asynq.MaxRetry(5)), nil
}

func ParseCursorResetPayload(task *asynq.Task) (CursorResetPayload, error) {
	var payload CursorResetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CursorResetPayload{}, err
	}
	return payload, nil
}
