// Package app wires configuration into the long-lived components shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/auth"
	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/notifications"
	"github.com/stream-sync/recsync/internal/pipeline"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/recordings"
	"github.com/stream-sync/recsync/internal/streaming"
	"github.com/stream-sync/recsync/internal/worker"
	"github.com/stream-sync/recsync/pkg/database"
	"github.com/stream-sync/recsync/pkg/queue"
	"github.com/stream-sync/recsync/pkg/redis"
	"github.com/stream-sync/recsync/pkg/storage"
)

// App holds the shared components.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Queue         *queue.Queue
	Host          *coursehost.Client
	Streams       *streaming.Client
	Registry      *platform.Registry
	Recordings    *recordings.Repository
	Notifications *notifications.Repository
	Archive       *storage.S3
	Pipeline      *pipeline.Pipeline
	Service       *recordings.Service
	JWT           *auth.JWTService
}

// New connects to PostgreSQL and Redis, applies the schema and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool
	if err := database.Migrate(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.Queue = queue.NewQueue(rdb.Client, logger)

	timeout := time.Duration(cfg.Pipeline.HTTPTimeoutSec) * time.Second
	a.Host = coursehost.NewClient(cfg.LMS.URL, cfg.LMS.Token, timeout, logger)
	a.Streams = streaming.NewClient(cfg.Stream.URL, cfg.Stream.Key, timeout, logger)

	a.Registry, err = BuildRegistry(cfg, a.Host, platform.NewTokenCache(), platform.NewRedisSecretStore(rdb.Client), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AWS.ArchiveBucket != "" {
		a.Archive, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("archive snapshots disabled", zap.Error(err))
			a.Archive = nil
		}
	}

	a.Recordings = recordings.NewRepository(pool)
	a.Notifications = notifications.NewRepository(pool)
	a.JWT = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	deps := pipeline.Deps{
		Store:    a.Recordings,
		Registry: a.Registry,
		Host:     a.Host,
		Uploader: a.Streams,
		Notifier: a.Queue,
	}
	svcDeps := recordings.ServiceDeps{
		Store:    a.Recordings,
		Registry: a.Registry,
		Host:     a.Host,
		Notifier: a.Queue,
		Streams:  a.Streams,
	}
	// Leave the interfaces nil rather than holding a nil *S3.
	if a.Archive != nil {
		deps.Archiver = a.Archive
		svcDeps.Archive = a.Archive
	}
	a.Pipeline = pipeline.New(deps, opts, logger)
	a.Service = recordings.NewService(svcDeps, opts.DirectLink, opts.Location, logger)
	return a, nil
}

// NotificationProcessor builds the queue consumer.
func (a *App) NotificationProcessor() *worker.NotificationProcessor {
	return worker.NewNotificationProcessor(a.Queue, a.Host, a.Notifications, a.Logger)
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
