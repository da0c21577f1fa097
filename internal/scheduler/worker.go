package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/pixels/ports"
	pixelservice "glasswallet_backend/internal/pixels/service"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

// PixelRetrier re-runs a failed connection sync.
type PixelRetrier interface {
	RetrySync(ctx context.Context, retry ports.SyncRetry) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	bus    events.Bus
	pixels PixelRetrier
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, pixels PixelRetrier, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		RetryDelayFunc: retryDelay,
	})

	w := newWorker(bus, pixels, log)
	w.server = server
	return w, nil
}

func newWorker(bus events.Bus, pixels PixelRetrier, log *logger.Logger) *Worker {
	w := &Worker{mux: asynq.NewServeMux(), bus: bus, pixels: pixels, log: log}
	w.mux.HandleFunc(TaskWebhookDeliver, w.handleOutboxDeliver)
	w.mux.HandleFunc(TaskEmailDeliver, w.handleOutboxDeliver)
	w.mux.HandleFunc(TaskPixelSyncRetry, w.handlePixelSyncRetry)
	return w
}

// retryDelay doubles from retryBaseDelay per retry up to retryMaxDelay.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 16 {
		return retryMaxDelay
	}
	delay := retryBaseDelay << n
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

// finalAttempt reports whether a failure of the running task will not be retried.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

func (w *Worker) handleOutboxDeliver(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxDeliverPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return w.bus.PublishSync(ctx, events.OutboxDue{
		BaseEvent:    events.NewBaseEvent(),
		OutboxID:     outboxID,
		UserID:       userID,
		FinalAttempt: finalAttempt(ctx),
	})
}

func (w *Worker) handlePixelSyncRetry(ctx context.Context, task *asynq.Task) error {
	if w.pixels == nil {
		return nil
	}
	retry, err := ParsePixelSyncRetryPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err = w.pixels.RetrySync(ctx, retry)
	switch {
	case err == nil:
		w.log.Info("pixel sync retry succeeded", "connectionId", retry.ConnectionID, "leads", len(retry.LeadIDs))
		return nil
	case errors.Is(err, pixelservice.ErrRetryPointless):
		w.log.Info("pixel sync retry abandoned", "connectionId", retry.ConnectionID, "reason", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		w.log.Warn("pixel sync retry failed", "connectionId", retry.ConnectionID, "final", finalAttempt(ctx), "error", err)
		return err
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
