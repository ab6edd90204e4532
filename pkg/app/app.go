// Package app assembles the service from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/config"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/handlers"
	"github.com/arnavshah/carelink-api-go/pkg/payout"
	"github.com/arnavshah/carelink-api-go/pkg/ratelimit"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Handler *handlers.Handler
	Router  *gin.Engine

	redis  *redis.Client
	bridge *realtime.RedisBridge
	log    *zap.Logger
}

// New opens the database, seeds the admin and wires the optional Redis
// backends. ctx bounds the Redis pub/sub relay.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	authn := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost)
	if err := auth.EnsureAdminExists(db, authn, cfg.Admin.Email, cfg.Admin.Password, log); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	a := &App{log: log}
	if cfg.Redis.Address != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup", zap.Error(err), zap.String("address", cfg.Redis.Address))
		}
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedis(a.redis)
	}

	hub := realtime.NewHub(cfg.Realtime.BufferSize, log)
	var events realtime.Publisher = hub
	if cfg.Realtime.Backend == "redis" {
		a.bridge = realtime.NewRedisBridge(hub, a.redis, log)
		if err := a.bridge.Start(ctx); err != nil {
			log.Warn("realtime redis bridge disabled", zap.Error(err))
			a.bridge = nil
		} else {
			events = a.bridge
		}
	}

	a.Handler = &handlers.Handler{
		DB:      db,
		Auth:    authn,
		Hub:     hub,
		Events:  events,
		Payouts: payout.NewClient(cfg.Payout.BaseURL, cfg.Payout.APIKey, cfg.Payout.Timeout),
		Limiter: limiter,
		Log:     log,
		Config:  cfg,
	}
	a.Router = handlers.NewRouter(a.Handler)
	return a, nil
}

// Close releases Redis and the database pool.
func (a *App) Close() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn("closing realtime bridge", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Handler != nil {
		if sqlDB, err := a.Handler.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
