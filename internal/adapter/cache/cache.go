// Package cache is the shared, out-of-process key/value tier used by every
// server process. All calls are bounded by an operation timeout and guarded by
// a circuit breaker so a tier outage degrades callers instead of stalling them.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key does not exist.
	ErrMiss = errors.New("cache: miss")
	// ErrUnavailable wraps every connectivity failure and the open-breaker state.
	ErrUnavailable = errors.New("cache: shared tier unavailable")
)

const (
	userKeyPrefix = "user:"
	rateKeyPrefix = "rate:"

	// GenerationKey counts user writes across all processes. It lives outside
	// the user prefix so no username maps onto it.
	GenerationKey = "identity:generation"
)

// Entry is one key/value pair of a bulk write.
type Entry struct {
	Key   string
	Value string
}

// Store is the contract the identity layer needs from the shared tier.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetMany writes entries in batches and returns how many were confirmed,
	// together with the first error that interrupted the write.
	SetMany(ctx context.Context, entries []Entry, ttl time.Duration) (int, error)
	// Incr atomically increments a counter key without expiry.
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// UserKey is the shared-tier key for a normalized username.
func UserKey(username string) string { return userKeyPrefix + username }

// RateKey is the shared-tier key for an uppercase currency code.
func RateKey(currency string) string { return rateKeyPrefix + currency }
