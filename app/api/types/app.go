package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/analytics"
	"github.com/polyvisor/pulse/pkg/redis"
	"github.com/polyvisor/pulse/pkg/store"
)

type App struct {
	// Application core
	Service *analytics.Service

	// Persistence (memory or ClickHouse, selected at startup)
	Store store.Store

	// Redis Client (for WebSocket real-time events)
	RedisClient *redis.Client

	// Cron runs the periodic proof-cache and job sweeps.
	Cron     *cron.Cron
	CronSpec string

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// Start runs the server until the context is cancelled, then shuts
// everything down in dependency order.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Sweep scheduler started", zap.String("cronSpec", a.CronSpec))
	}

	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	if a.Cron != nil {
		a.Logger.Info("Stopping sweep scheduler")
		<-a.Cron.Stop().Done()
	}

	a.Logger.Info("Draining proof workers")
	a.Service.Close()

	if a.RedisClient != nil {
		a.Logger.Info("Closing Redis connection")
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	if a.Store != nil {
		a.Logger.Info("Closing store")
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close store", zap.Error(err))
		}
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)
}
