package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glasswallet_backend/internal/accounts"
	accountsrepo "glasswallet_backend/internal/accounts/repository"
	"glasswallet_backend/internal/adapters"
	"glasswallet_backend/internal/credit"
	"glasswallet_backend/internal/email"
	"glasswallet_backend/internal/events"
	apphttp "glasswallet_backend/internal/http"
	"glasswallet_backend/internal/http/router"
	"glasswallet_backend/internal/integrate"
	"glasswallet_backend/internal/intelligence"
	"glasswallet_backend/internal/leads"
	"glasswallet_backend/internal/notification"
	"glasswallet_backend/internal/notification/outbox"
	"glasswallet_backend/internal/pixels"
	"glasswallet_backend/internal/rules"
	"glasswallet_backend/internal/rules/engine"
	"glasswallet_backend/internal/scheduler"
	"glasswallet_backend/migrations"
	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/config"
	"glasswallet_backend/platform/db"
	"glasswallet_backend/platform/logger"
	"glasswallet_backend/platform/ratelimit"
	"glasswallet_backend/platform/redisx"
	"glasswallet_backend/platform/secretbox"
	"glasswallet_backend/platform/storage"
	"glasswallet_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	var redisClient *redis.Client
	if err := withRetry(ctx, log, "redis connection", 3, time.Second, func() error {
		c, err := redisx.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		redisClient = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}

	var (
		store   cache.Store
		limiter ratelimit.Limiter
	)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		store = cache.NewRedisStore(redisClient, "glasswallet:cache:")
		limiter = ratelimit.NewRedisLimiter(redisClient, "glasswallet:rl:")
		log.Info("redis connected, shared cache and rate limits enabled")
	} else {
		mem := cache.NewMemoryStore()
		go mem.Sweep(ctx, time.Minute)
		memLimiter := ratelimit.NewMemoryLimiter()
		go pruneLimiter(ctx, memLimiter)
		store = mem
		limiter = memLimiter
		log.Warn("REDIS_URL not configured; using in-process cache and rate limits")
	}

	box, err := secretbox.New(cfg.GetTokenEncryptionSecret())
	if err != nil {
		log.Error("failed to initialize token encryption", "error", err)
		panic("failed to initialize token encryption: " + err.Error())
	}

	var objects storage.ObjectStore
	if cfg.IsMinIOEnabled() {
		minioStore, err := storage.NewMinIOStore(cfg)
		if err != nil {
			log.Error("failed to initialize storage", "error", err)
			panic("failed to initialize storage: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure credit reports bucket", 5, 2*time.Second, func() error {
			return minioStore.EnsureBucketExists(ctx, cfg.GetMinioBucketCreditReports())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketCreditReports())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		objects = minioStore
		log.Info("storage service initialized", "creditReportsBucket", cfg.GetMinioBucketCreditReports())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; credit reports will not be archived")
	}

	policy, err := engine.ParsePolicy(cfg.GetRuleConflictPolicy())
	if err != nil {
		panic("invalid rule conflict policy: " + err.Error())
	}

	eventBus := events.NewBus(log)
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	accountsModule := accounts.NewModule(pool, val, log)
	creditModule := credit.NewModule(pool, cfg, objects, cfg.GetMinioBucketCreditReports(), eventBus, val, log)
	rulesModule := rules.NewModule(pool, policy, val, log)
	intelligenceModule := intelligence.NewModule(pool, cfg, val, log)

	leadsModule := leads.NewModule(pool, eventBus,
		adapters.NewCreditPuller(creditModule.Service()),
		rulesModule.Service(),
		adapters.NewSignalProvider(intelligenceModule.Service()),
		val, log)

	pixelsModule := pixels.NewModule(pool, cfg, box, store,
		adapters.NewPixelLeadSource(leadsModule.Repository()), eventBus, val, log)
	leadsModule.Service().SetPixelSyncer(adapters.NewPixelSyncer(pixelsModule.Service()))

	integrateModule := integrate.NewModule(pool, adapters.NewIntakeLeadCreator(leadsModule.Service()), eventBus, val, log)

	notificationModule := notification.New(outbox.New(pool), accountsrepo.New(pool), newSender(cfg, log),
		notification.NewWebhookClient(nil), val, log)
	notificationModule.RegisterHandlers(eventBus)
	leadsModule.Service().SetWebhookStager(notificationModule)

	if cfg.GetRedisURL() != "" {
		retryClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize sync retry client", "error", err)
		} else {
			defer func() { _ = retryClient.Close() }()
			pixelsModule.Service().SetRetryScheduler(retryClient)
		}
	} else {
		log.Warn("REDIS_URL not configured; failed pixel syncs will not be retried")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:      cfg,
		Logger:      log,
		Health:      db.NewPoolAdapter(pool),
		EventBus:    eventBus,
		RateLimiter: limiter,
		Cache:       store,
		Modules: []apphttp.Module{
			accountsModule,
			creditModule,
			leadsModule,
			rulesModule,
			pixelsModule,
			integrateModule,
			intelligenceModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newSender(cfg *config.Config, log *logger.Logger) email.Sender {
	if !cfg.IsMailEnabled() {
		log.Warn("SMTP not configured; notification emails are discarded")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(cfg, cfg.GetAppBaseURL())
}

func pruneLimiter(ctx context.Context, l *ratelimit.MemoryLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(time.Hour)
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
