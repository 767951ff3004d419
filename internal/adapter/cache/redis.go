package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/webitel/code-delivery-service/internal/metrics"
)

var _ Store = (*RedisCache)(nil)

const (
	defaultOpTimeout = 500 * time.Millisecond
	defaultBatchSize = 500
)

// BreakerSettings mirrors the tunables of the circuit breaker around the tier.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type Option func(*RedisCache)

func WithOpTimeout(d time.Duration) Option {
	return func(c *RedisCache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *RedisCache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithBreaker(s BreakerSettings) Option {
	return func(c *RedisCache) { c.breakerSettings = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *RedisCache) { c.logger = l }
}

// RedisCache implements Store on top of go-redis.
type RedisCache struct {
	client          redis.UniversalClient
	breaker         *gobreaker.CircuitBreaker
	breakerSettings BreakerSettings
	opTimeout       time.Duration
	batchSize       int
	logger          *slog.Logger
}

func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	c := &RedisCache{
		client:    client,
		opTimeout: defaultOpTimeout,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		breakerSettings: BreakerSettings{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             10 * time.Second,
			ConsecutiveFailures: 3,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := c.breakerSettings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "shared-cache",
		MaxRequests: c.breakerSettings.MaxRequests,
		Interval:    c.breakerSettings.Interval,
		Timeout:     c.breakerSettings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// [MISS_IS_HEALTHY] a missing key proves the tier answered
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("CACHE_BREAKER_STATE_CHANGED",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.SetAvailable(to != gobreaker.StateOpen)
		},
	})
	return c
}

// execute runs fn under the breaker with a per-call deadline. Whatever fn
// produced is returned even on failure so partial results survive.
func (c *RedisCache) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (any, error) { return fn(ctx) })
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, redis.Nil):
		return res, ErrMiss
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return res, ErrUnavailable
	default:
		return res, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	res, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return c.client.Get(ctx, key).Result()
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.client.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// SetMany pipelines entries in chunks of batchSize. A failed chunk stops the
// write; entries confirmed before it are still counted.
func (c *RedisCache) SetMany(ctx context.Context, entries []Entry, ttl time.Duration) (int, error) {
	written := 0
	for start := 0; start < len(entries); start += c.batchSize {
		end := min(start+c.batchSize, len(entries))
		chunk := entries[start:end]

		res, err := c.execute(ctx, func(ctx context.Context) (any, error) {
			pipe := c.client.Pipeline()
			cmds := make([]*redis.StatusCmd, 0, len(chunk))
			for _, e := range chunk {
				cmds = append(cmds, pipe.Set(ctx, e.Key, e.Value, ttl))
			}
			_, execErr := pipe.Exec(ctx)

			ok := 0
			for _, cmd := range cmds {
				if cmd.Err() == nil {
					ok++
				}
			}
			return ok, execErr
		})
		if n, isInt := res.(int); isInt {
			written += n
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	res, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return c.client.Incr(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Ping probes the tier. With the breaker open it fails fast without touching the network.
func (c *RedisCache) Ping(ctx context.Context) error {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

// State exposes the breaker state for stats.
func (c *RedisCache) State() gobreaker.State { return c.breaker.State() }
