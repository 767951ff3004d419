package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
)

var discard = slog.New(slog.DiscardHandler)

// memCache is an in-memory cache.Store with a switchable outage.
type memCache struct {
	mu        sync.Mutex
	data      map[string]string
	ttls      map[string]time.Duration
	counters  map[string]int64
	down      bool
	failAfter int // SetMany stops after this many entries when > 0
	pings     int
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}, ttls: map[string]time.Duration{}, counters: map[string]int64{}}
}

func (c *memCache) setDown(v bool) {
	c.mu.Lock()
	c.down = v
	c.mu.Unlock()
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", cache.ErrUnavailable
	}
	if n, ok := c.counters[key]; ok {
		return strconv.FormatInt(n, 10), nil
	}
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

// Incr keeps counters apart from data so snapshots only show written entries.
func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return 0, cache.ErrUnavailable
	}
	c.counters[key]++
	return c.counters[key], nil
}

func (c *memCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return cache.ErrUnavailable
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) SetMany(_ context.Context, entries []cache.Entry, ttl time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return 0, cache.ErrUnavailable
	}
	for i, e := range entries {
		if c.failAfter > 0 && i >= c.failAfter {
			return i, cache.ErrUnavailable
		}
		c.data[e.Key] = e.Value
		c.ttls[e.Key] = ttl
	}
	return len(entries), nil
}

func (c *memCache) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	if c.down {
		return cache.ErrUnavailable
	}
	return nil
}

func (c *memCache) snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// memDirectory is an in-memory identity store.
type memDirectory struct {
	users []model.User
	rates []model.ExchangeRate
	err   error
	calls int
}

func (d *memDirectory) ListUsers(context.Context) ([]model.User, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return append([]model.User(nil), d.users...), nil
}

func (d *memDirectory) FindByUsername(_ context.Context, username string) (*model.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if n, _ := model.NormalizeUsername(u.Username); n == username {
			return &u, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (d *memDirectory) ListExchangeRates(context.Context) ([]model.ExchangeRate, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.rates, nil
}

// recordingGroups captures push-group publishes.
type recordingGroups struct {
	mu        sync.Mutex
	published []string
	members   map[string]int
	onPublish func(group string, ev event.Eventer)
	err       error
	joined    []string
}

func (g *recordingGroups) Publish(_ context.Context, group string, ev event.Eventer) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.onPublish != nil {
		g.onPublish(group, ev)
	}
	if g.err != nil {
		return 0, g.err
	}
	g.published = append(g.published, group)
	return g.members[group], nil
}

func (g *recordingGroups) Join(group string, _ registry.Connector) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.joined = append(g.joined, group)
	return func() {}, nil
}

var errStoreDown = errors.New("connection refused")
