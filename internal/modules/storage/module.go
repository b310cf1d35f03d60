package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"dip_bot/internal/modules/config"
	"dip_bot/internal/state"
	"dip_bot/pkg/db"
)

const redisPingTimeout = 5 * time.Second

// NewStore opens the configured backend. An unreachable store fails startup.
func NewStore(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (state.Store, error) {
	instrument := cfg.Coin()

	switch cfg.State.Backend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.State.DB, MaxConns: 4})
		if err != nil {
			return nil, fmt.Errorf("failed to create pool: %w", err)
		}
		tm := db.NewPgTxManager(pool)

		store := state.NewPostgresStore(tm, instrument, time.Now)
		if err := store.Migrate(ctx); err != nil {
			tm.Close()
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				tm.Close()
				return nil
			},
		})

		log.Info("state backend ready", zap.String("backend", "postgres"), zap.String("instrument", instrument))
		return store, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.State.RedisAddr})
		pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.State.RedisAddr, err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return rdb.Close() },
		})

		store := state.NewRedisStore(rdb, instrument, time.Now)
		log.Info("state backend ready", zap.String("backend", "redis"), zap.String("key", store.Key()))
		return store, nil

	default:
		store := state.NewFileStore(cfg.State.Path, time.Now)
		log.Info("state backend ready", zap.String("backend", "file"), zap.String("path", store.Path()))
		return store, nil
	}
}

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(NewStore),
	)
}
