package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/slab-engine/internal/blob"
	blobmemory "github.com/kursadbilgin/slab-engine/internal/blob/memory"
	blobs3 "github.com/kursadbilgin/slab-engine/internal/blob/s3"
	"github.com/kursadbilgin/slab-engine/internal/config"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/handler"
	"github.com/kursadbilgin/slab-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/slab-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/slab-engine/internal/infra/redis"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/provider"
	"github.com/kursadbilgin/slab-engine/internal/queue"
	"github.com/kursadbilgin/slab-engine/internal/ratelimit"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"github.com/kursadbilgin/slab-engine/internal/service"
	"github.com/kursadbilgin/slab-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 15 * time.Second
	consumerPrefetch = 4
)

func main() {
	_, _ = maxprocs.Set()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("slab-engine api stopped with error", zap.Error(err))
	}
	logger.Info("slab-engine api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	engine := lifecycle.NewEngine()

	var (
		slabs       repository.SlabRepository
		transitions repository.TransitionRepository
		sqlDB       *sql.DB
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolConfig())
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err = db.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()

		slabs = repository.NewGormSlabRepo(db)
		transitions = repository.NewGormTransitionRepo(db)
	default:
		slabs = repository.NewMemorySlabStore()
		transitions = repository.NewMemoryTransitionRepo()
		logger.Warn("using in-memory slab store; data is lost on restart")
	}

	slabService := service.NewSlabService(slabs, transitions, engine, logger)
	slabService.SetMetrics(metrics)

	orchestrator := service.NewOrchestrator(slabs, engine, logger)
	orchestrator.SetMetrics(metrics)
	orchestrator.SetTransitionRepository(transitions)
	orchestrator.SetItemDelay(cfg.BatchItemDelay)
	orchestrator.SetMaxBatchSize(cfg.BatchMaxSize)

	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}
	orchestrator.SetArtifactStore(artifacts)
	logger.Info("export artifact store ready", zap.String("driver", string(artifacts.Driver())))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		progress, err := infraredis.NewProgressPublisher(rdb, logger)
		if err != nil {
			return err
		}
		progress.SetMetrics(metrics)
		unsubscribe := orchestrator.Subscribe(progress.Publish)
		defer unsubscribe()

		if cfg.BatchRateLimited() {
			limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.BatchItemsPerSec)
			if err != nil {
				return err
			}
			if err := applyKindLimits(limiter, cfg.BatchKindLimits); err != nil {
				return err
			}
			orchestrator.SetRateLimiter(limiter)
		}
	}

	if cfg.BatchRateLimited() && rdb == nil {
		limiter, err := ratelimit.NewLocalLimiter(cfg.BatchItemsPerSec)
		if err != nil {
			return err
		}
		if err := applyKindLimits(limiter, cfg.BatchKindLimits); err != nil {
			return err
		}
		orchestrator.SetRateLimiter(limiter)
		logger.Info("using in-process batch rate limiter", zap.Int("itemsPerSec", cfg.BatchItemsPerSec))
	}

	if cfg.CompletionWebhookURL != "" {
		notifier, err := provider.NewWebhookNotifier(cfg.CompletionWebhookURL, logger)
		if err != nil {
			return err
		}
		orchestrator.AddNotifier(notifier)
	}

	var (
		commands handler.BatchCommandPublisher
		worker   *service.BatchWorker
	)
	if cfg.RabbitMQURL != "" {
		rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		defer rabbit.Close()

		publisher := queue.NewRabbitMQPublisher(rabbit)
		slabService.SetTransitionPublisher(publisher)
		orchestrator.SetTransitionPublisher(publisher)
		commands = publisher

		consumer := queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, logger)
		worker = service.NewBatchWorker(consumer, orchestrator, cfg.BatchWorkerCount, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               "slab-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterSlabRoutes(app, slabService); err != nil {
		return err
	}
	if err := handler.RegisterBatchRoutes(app, orchestrator, commands); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("slab-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if worker != nil {
		g.Go(func() error {
			if err := worker.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("batch worker failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", zap.Error(err))
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			logger.Warn("batch runs did not stop in time", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

type kindLimiter interface {
	SetKindLimit(kind domain.OperationKind, perSec int) error
}

func applyKindLimits(limiter kindLimiter, limits map[domain.OperationKind]int) error {
	for kind, perSec := range limits {
		if err := limiter.SetKindLimit(kind, perSec); err != nil {
			return fmt.Errorf("batch rate limit for %s: %w", kind, err)
		}
	}
	return nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if !cfg.ExportS3Enabled() {
		return blobmemory.New(), nil
	}

	store, err := blobs3.New(ctx, blobs3.Config{
		Region:    cfg.ExportS3Region,
		Bucket:    cfg.ExportS3Bucket,
		Endpoint:  cfg.ExportS3Endpoint,
		PathStyle: cfg.ExportS3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 artifact store initialization failed: %w", err)
	}
	return store, nil
}
