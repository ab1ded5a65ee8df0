// Package bootstrap wires configuration into the long-lived runtime pieces
// shared by the API server and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loop/internal/auth"
	"loop/internal/cache"
	"loop/internal/config"
	"loop/internal/database"
	"loop/internal/events"
	"loop/internal/media"
	"loop/internal/middleware"
	"loop/internal/notifications"
	"loop/internal/observability"
	"loop/internal/repository"
	"loop/internal/server"
	"loop/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Runtime holds the API process dependencies in start order.
type Runtime struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Dispatcher *events.Dispatcher
	Outbox     *events.OutboxProcessor
	Server     *server.Server

	stopOutbox      context.CancelFunc
	outboxDone      chan struct{}
	shutdownTracing func(context.Context) error
}

// InitStore connects to the database and Redis. A missing Redis leaves the
// client nil; caches and rate limits then degrade.
func InitStore(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return db, cache.GetClient(), nil
}

// NewVerifier builds the token verifier for cfg.AuthMode. Supabase lookups
// are cached in Redis for TokenCacheSeconds.
func NewVerifier(cfg *config.Config) (auth.Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		if cfg.SupabaseJWTSecret == "" {
			return nil, errors.New("SUPABASE_JWT_SECRET is required when AUTH_MODE=jwt")
		}
		return auth.NewJWTVerifier(cfg.SupabaseJWTSecret), nil
	case config.AuthModeSupabase:
		v, err := auth.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(cfg.TokenCacheSeconds) * time.Second
		if ttl <= 0 {
			return v, nil
		}
		return auth.NewCachingVerifier(v, ttl), nil
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
}

// NewMediaStore returns the Cloudinary store, or nil when it is not
// configured. Uploads then answer 503.
func NewMediaStore(cfg *config.Config) (media.Store, error) {
	if cfg.CloudinaryCloudName == "" {
		middleware.Logger.Warn("cloudinary not configured, media uploads disabled")
		return nil, nil
	}
	store, err := media.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewDispatcher creates the side-effect dispatcher and registers the
// notification, realtime and counter handlers.
func NewDispatcher(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *events.Dispatcher {
	outbox := repository.NewOutboxRepository(db)
	d := events.NewDispatcher(outbox, events.Options{
		Workers:   cfg.DispatchWorkers,
		QueueSize: cfg.DispatchQueueSize,
		MaxTries:  cfg.DispatchMaxTries,
	})

	var broadcaster service.Broadcaster
	if rdb != nil {
		broadcaster = notifications.NewNotifier(rdb)
	}
	notificationSvc := service.NewNotificationService(repository.NewNotificationRepository(db), d)
	service.RegisterHandlers(d, notificationSvc, repository.NewCounterRepository(db), broadcaster)
	return d
}

// Init builds the full API runtime without starting background work.
func Init(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "loop-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampler,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	db, rdb, err := InitStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := NewVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}
	store, err := NewMediaStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("media init failed: %w", err)
	}

	d := NewDispatcher(cfg, db, rdb)
	srv, err := server.NewServer(cfg, db, rdb, server.Options{
		Verifier:   verifier,
		Publisher:  d,
		MediaStore: store,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		Dispatcher: d,
		Outbox: events.NewOutboxProcessor(repository.NewOutboxRepository(db), d,
			time.Duration(cfg.OutboxPollSeconds)*time.Second, cfg.OutboxMaxAttempts, cfg.OutboxBatchSize),
		Server:          srv,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Start launches the dispatcher workers and the outbox poller.
func (r *Runtime) Start() {
	r.Dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	r.stopOutbox = cancel
	r.outboxDone = make(chan struct{})
	go func() {
		defer close(r.outboxDone)
		r.Outbox.Run(ctx)
	}()
}

// Shutdown drains the dispatcher, stops the outbox poller, then closes the
// stores. Stop HTTP first so no new events arrive. When ctx expires the
// dispatcher parks undelivered events before returning, while the database
// is still open.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if err := r.Dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher drain: %w", err))
	}

	if r.stopOutbox != nil {
		r.stopOutbox()
		select {
		case <-r.outboxDone:
		case <-ctx.Done():
			errs = append(errs, errors.New("outbox poller did not stop in time"))
		}
	}

	if r.shutdownTracing != nil {
		if err := r.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	if err := database.Close(r.DB); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if len(errs) == 0 {
		middleware.Logger.Info("runtime stopped")
	} else {
		middleware.Logger.Error("runtime stopped with errors", slog.Any("errors", errs))
	}
	return errors.Join(errs...)
}
