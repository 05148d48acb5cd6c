// Package api assembles the metric pipeline service: the proof pipeline and
// scheduler, persistence, trust registry, optional Redis event fanout, and
// the HTTP surface.
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/app/api/types"
	"github.com/polyvisor/pulse/pkg/analytics"
	"github.com/polyvisor/pulse/pkg/health"
	"github.com/polyvisor/pulse/pkg/logging"
	"github.com/polyvisor/pulse/pkg/redis"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/store"
	chstore "github.com/polyvisor/pulse/pkg/store/clickhouse"
	"github.com/polyvisor/pulse/pkg/trust"
	"github.com/polyvisor/pulse/pkg/utils"
	"github.com/polyvisor/pulse/pkg/zk"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	// Persistence: ClickHouse when configured, otherwise in-memory.
	var st store.Store
	if utils.Env("STORE_BACKEND", "memory") == "clickhouse" {
		dbName := utils.Env("PULSE_DB", "pulse")
		chStore, chErr := chstore.NewStore(ctx, logger, dbName)
		if chErr != nil {
			logger.Fatal("Unable to initialize ClickHouse store", zap.Error(chErr))
		}
		st = chStore
	} else {
		logger.Info("Using in-memory store")
		st = store.NewMemory()
	}

	// Redis for real-time WebSocket events (optional).
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	// With a volatile store, replaying the durable stream restores metric
	// history after a restart.
	if redisClient != nil {
		if _, isMemory := st.(*store.Memory); isMemory {
			if tailErr := startAcceptedTail(ctx, redisClient, st, logger); tailErr != nil {
				logger.Warn("Unable to start accepted-metric tail", zap.Error(tailErr))
			}
		}
	}

	backend := &zk.MockBackend{
		Latency: utils.EnvDuration("PROOF_LATENCY", 0),
	}
	pipeline := zk.NewPipeline(zk.DefaultCatalog(), backend, logger,
		zk.WithProofTTL(utils.EnvDuration("PROOF_TTL", zk.DefaultProofTTL)))

	cfg := analytics.DefaultConfig()
	cfg.Scheduler.Workers = utils.EnvInt("PROOF_WORKERS", cfg.Scheduler.Workers)
	cfg.Scheduler.QueueSize = utils.EnvInt("PROOF_QUEUE_SIZE", cfg.Scheduler.QueueSize)
	cfg.ProofMaxAge = utils.EnvDuration("PROOF_MAX_AGE", cfg.ProofMaxAge)

	service := analytics.NewService(
		cfg,
		pipeline,
		reputation.NewTracker(logger),
		health.NewService(st, logger),
		st,
		trust.FromEnv(logger),
		redisClient,
		logger,
	)

	app := &types.App{
		Service:     service,
		Store:       st,
		RedisClient: redisClient,
		CronSpec:    utils.Env("SWEEP_CRON", "0 * * * * *"), // every minute, on the minute
		Logger:      logger,
	}

	if err := setupScheduler(app); err != nil {
		logger.Fatal("Unable to set up sweep scheduler", zap.Error(err))
	}

	return app
}

// setupScheduler registers the periodic sweep that evicts expired cached
// proofs and stale jobs.
func setupScheduler(app *types.App) error {
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := app.Cron.AddFunc(app.CronSpec, func() {
		start := time.Now()
		app.Service.Sweep()
		app.Logger.Debug("sweep tick", zap.Duration("took", time.Since(start)))
	})
	return err
}
