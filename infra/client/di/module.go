package clientdi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/webitel/code-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"clients",

	// [CONSTRUCTOR] Shared cache tier client; connections are dialed lazily
	fx.Provide(NewRedisClient),
	// [CONSTRUCTOR] Identity store pool; connections are dialed lazily
	fx.Provide(NewPostgresPool),

	// [LIFECYCLE] Report reachability on start, release connections on stop.
	// An unreachable backend is logged, not fatal: resolution degrades instead.
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
				defer cancel()
				if err := client.Ping(pingCtx).Err(); err != nil {
					logger.Warn("REDIS_UNREACHABLE_AT_START", slog.String("addr", cfg.Redis.Addr), slog.Any("err", err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}),

	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				pingCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.ConnectTimeout)
				defer cancel()
				if err := pool.Ping(pingCtx); err != nil {
					logger.Warn("POSTGRES_UNREACHABLE_AT_START", slog.Any("err", err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
	}),
)

func NewRedisClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.OpTimeout,
		WriteTimeout: cfg.Redis.OpTimeout,
	})
}

func NewPostgresPool(cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.Postgres.MaxConns > 0 {
		pc.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.Postgres.ConnectTimeout
	}
	return pgxpool.NewWithConfig(context.Background(), pc)
}
