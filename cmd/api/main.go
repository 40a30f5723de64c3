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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/config"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/observability"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage/memory"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage/postgres"
	"github.com/cimillas/ultimate-ticket/services/core/internal/sweeper"
	transporthttp "github.com/cimillas/ultimate-ticket/services/core/internal/transport/http"
	"github.com/cimillas/ultimate-ticket/services/core/migrations"
)

const (
	startupTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	sweeperLeaseKey = "reservation-core:sweeper"
)

func main() {
	boot, _ := zap.NewProduction()
	config.LoadEnvFile(boot)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.Development())
	if err != nil {
		boot.Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	store, ping, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := events.Nop()
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events are dropped")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", zap.Error(err))
		}
	}()

	policy, err := app.ParseStockPolicy(cfg.StockPolicy)
	if err != nil {
		return err
	}
	retry := storage.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.TxMaxAttempts

	clk := clock.NewSystem()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithPublisher(publisher),
		app.WithRetryPolicy(retry),
		app.WithLockTTL(cfg.LockTTL),
		app.WithStockPolicy(policy),
	}
	locks := app.NewLockService(store, clk, opts...)
	coord := app.NewCoordinator(store, clk, opts...)
	admin := app.NewAdminService(store, clk, opts...)
	verifier := app.NewPaymentVerifier([]byte(cfg.PaymentSecret), coord, logger)

	handler := transporthttp.NewRouter(transporthttp.Services{
		Locks:         locks,
		Shipper:       coord,
		Registrations: coord,
		Payments:      verifier,
		Admin:         admin,
		Ping:          ping,
	}, cfg.CORSOrigins, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", server.Addr), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if cfg.SweepInterval > 0 {
		lease, closeLease, err := sweeperLease(cfg, logger)
		if err != nil {
			return err
		}
		defer closeLease()
		sw := sweeper.New(store, clk, cfg.SweepInterval, logger,
			sweeper.WithLease(lease),
			sweeper.WithRetryPolicy(retry),
		)
		g.Go(func() error {
			return sw.Run(gctx)
		})
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, func(context.Context) error, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.New(), nil, func() {}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.NewStore(pool), pool.Ping, pool.Close, nil
}

func sweeperLease(cfg config.Config, logger *zap.Logger) (sweeper.Lease, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, sweeper assumes it is the only instance")
		return sweeper.Sole(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
	return sweeper.NewRedisLease(client, sweeperLeaseKey, cfg.InstanceID), closeClient, nil
}
