package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/levellist/internal/cache"
	"github.com/aimd54/levellist/internal/config"
	"github.com/aimd54/levellist/internal/discord"
	"github.com/aimd54/levellist/internal/notify"
	"github.com/aimd54/levellist/internal/repository"
	"github.com/aimd54/levellist/internal/service/engine"
	"github.com/aimd54/levellist/internal/service/points"
	"github.com/aimd54/levellist/pkg/logger"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *repository.DB
	redis  *cache.RedisBackend
	async  *notify.Async
	engine *engine.Engine
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		redisCfg := cfg.Database.Redis
		a.redis = cache.NewRedisBackend(redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			PoolSize: redisCfg.PoolSize,
		}))
		if err := a.redis.Health(context.Background()); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backend = a.redis
	default:
		backend = cache.NewMemoryBackend()
	}

	var sink notify.Sink = notify.Nop{}
	if cfg.Discord.Enabled {
		a.async = notify.NewAsync(discord.NewClient(&cfg.Discord, log), cfg.Discord.Timeout, log.Component("notify"))
		sink = a.async
	}

	opts := engine.Options{
		Formula: points.Formula{
			Base:      cfg.Points.Base,
			Decay:     cfg.Points.Decay,
			Precision: cfg.Points.Precision,
		},
		AffectedUsersOnly: cfg.Engine.AffectedUsersOnly,
	}

	listCache := cache.NewListCache(backend, cfg.Cache.TTL, log)
	a.engine = engine.New(repository.NewStore(db), listCache, sink, opts, log)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("cache", cfg.Cache.Backend).
		Bool("discord", cfg.Discord.Enabled).
		Bool("affected_users_only", opts.AffectedUsersOnly).
		Msg("Application initialized")

	return a, nil
}

// close waits for pending notifications and releases connections.
func (a *app) close() {
	if a.async != nil {
		a.async.Wait()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}
