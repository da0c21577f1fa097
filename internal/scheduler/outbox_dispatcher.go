package scheduler

import (
	"context"
	"errors"
	"time"

	"glasswallet_backend/internal/notification/outbox"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const (
	claimBatchSize = 50
	// taskTimeoutSlack bounds a delivery task beyond its own HTTP timeout.
	taskTimeoutSlack = 30 * time.Second
)

// OutboxDispatcher claims due outbox rows and hands them to asynq.
type OutboxDispatcher struct {
	client   enqueuer
	queue    string
	store    outbox.Store
	interval time.Duration
	log      *logger.Logger
}

func NewOutboxDispatcher(cfg config.SchedulerConfig, store outbox.Store, log *logger.Logger) (*OutboxDispatcher, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}
	interval := cfg.GetOutboxPollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxDispatcher{
		client:   asynq.NewClient(opt),
		queue:    queue,
		store:    store,
		interval: interval,
		log:      log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.store == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatch(ctx)
	}
}

// dispatch runs one claim cycle and returns how many rows were handed off.
func (d *OutboxDispatcher) dispatch(ctx context.Context) int {
	records, err := d.store.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		if err := d.enqueue(ctx, rec); err != nil {
			msg := err.Error()
			if markErr := d.store.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Error("outbox release failed", "outboxId", rec.ID, "error", markErr)
			}
			d.log.Warn("outbox enqueue failed; released", "outboxId", rec.ID, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (d *OutboxDispatcher) enqueue(ctx context.Context, rec outbox.Record) error {
	task, err := NewOutboxDeliverTask(rec.Kind, OutboxDeliverPayload{
		OutboxID: rec.ID.String(),
		UserID:   rec.UserID.String(),
	})
	if err != nil {
		return err
	}

	maxRetry := webhookMaxRetry
	if rec.Kind == outbox.KindEmail {
		maxRetry = emailMaxRetry
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.ProcessAt(rec.RunAt),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(rec.Timeout+taskTimeoutSlack),
		asynq.TaskID(rec.ID.String()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		d.log.Debug("outbox task already queued", "outboxId", rec.ID)
		return nil
	}
	return err
}
