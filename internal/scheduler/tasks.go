package scheduler

import (
	"encoding/json"

	"glasswallet_backend/internal/pixels/ports"

	"github.com/hibiken/asynq"
)

const (
	TaskWebhookDeliver = "webhook.deliver"
	TaskEmailDeliver   = "notification.email.deliver"
	TaskPixelSyncRetry = "pixels.sync.retry"
)

// Retry budgets. asynq counts retries, so attempts are one more.
const (
	webhookMaxRetry   = 7
	emailMaxRetry     = 4
	pixelSyncMaxRetry = 5
)

type OutboxDeliverPayload struct {
	OutboxID string `json:"outboxId"`
	UserID   string `json:"userId"`
}

func NewOutboxDeliverTask(kind string, payload OutboxDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	name := TaskWebhookDeliver
	if kind == "email" {
		name = TaskEmailDeliver
	}
	return asynq.NewTask(name, data), nil
}

func ParseOutboxDeliverPayload(task *asynq.Task) (OutboxDeliverPayload, error) {
	var payload OutboxDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxDeliverPayload{}, err
	}
	return payload, nil
}

func NewPixelSyncRetryTask(payload ports.SyncRetry) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPixelSyncRetry, data), nil
}

func ParsePixelSyncRetryPayload(task *asynq.Task) (ports.SyncRetry, error) {
	var payload ports.SyncRetry
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ports.SyncRetry{}, err
	}
	return payload, nil
}
