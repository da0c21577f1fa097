package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	accountsrepo "glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/adapters"
	"glasswallet_backend/internal/email"
	"glasswallet_backend/internal/events"
	leadrepo "glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/notification"
	"glasswallet_backend/internal/notification/outbox"
	"glasswallet_backend/internal/pixels"
	"glasswallet_backend/internal/scheduler"
	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/db"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/secretbox"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewBus(log)
	val := validator.New()

	var sender email.Sender = email.NoopSender{}
	if cfg.IsMailEnabled() {
		sender = email.NewSMTPSender(cfg, cfg.GetAppBaseURL())
	} else {
		log.Warn("SMTP not configured; notification emails are discarded")
	}

	store := outbox.New(pool)
	notificationModule := notification.New(store, accountsrepo.New(pool), sender,
		notification.NewWebhookClient(nil), val, log)
	notificationModule.RegisterHandlers(eventBus)

	// Sync retries need the pixel service but none of its HTTP surface.
	box, err := secretbox.New(cfg.GetTokenEncryptionSecret())
	if err != nil {
		log.Error("failed to initialize token encryption", "error", err)
		panic("failed to initialize token encryption: " + err.Error())
	}
	pixelsModule := pixels.NewModule(pool, cfg, box, cache.NewMemoryStore(),
		adapters.NewPixelLeadSource(leadrepo.New(pool)), eventBus, val, log)

	dispatcher, err := scheduler.NewOutboxDispatcher(cfg, store, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, pixelsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
