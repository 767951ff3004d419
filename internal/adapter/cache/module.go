package cache

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/webitel/code-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(
		func(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) *RedisCache {
			return NewRedisCache(client,
				WithOpTimeout(cfg.Redis.OpTimeout),
				WithBatchSize(cfg.Redis.BatchSize),
				WithBreaker(BreakerSettings{
					MaxRequests:         cfg.Breaker.MaxRequests,
					Interval:            cfg.Breaker.Interval,
					Timeout:             cfg.Breaker.Timeout,
					ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
				}),
				WithLogger(logger.With(slog.String("component", "cache"))),
			)
		},
		func(c *RedisCache) Store { return c },
	),
)
