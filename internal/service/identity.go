package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/metrics"
)

const (
	defaultUserTTL      = time.Hour
	defaultNegativeTTL  = 10 * time.Second
	defaultNegativeSize = 4096
)

// Resolver is the identity contract used by the ingestion boundary and the dispatcher.
type Resolver interface {
	// Resolve returns the user id for username, or false when unknown.
	Resolve(ctx context.Context, username string) (int64, bool)
	// Lookup reports which tier answered, alongside the entry.
	Lookup(ctx context.Context, username string) model.Resolution
	Set(ctx context.Context, username string, userID int64) error
	// Sync bulk-writes users to the shared tier and returns how many were confirmed.
	Sync(ctx context.Context, users []model.User) int
	IsAvailable(ctx context.Context) bool
}

// Directory is the read-only view of the identity store.
type Directory interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

type IdentityOption func(*IdentityService)

func WithUserTTL(d time.Duration) IdentityOption {
	return func(s *IdentityService) {
		if d > 0 {
			s.userTTL = d
		}
	}
}

// WithNegativeCache tunes the short-lived memory of usernames that missed every tier.
// A non-positive size disables it.
func WithNegativeCache(size int, ttl time.Duration) IdentityOption {
	return func(s *IdentityService) {
		s.negativeSize, s.negativeTTL = size, ttl
	}
}

func WithIdentityLogger(l *slog.Logger) IdentityOption {
	return func(s *IdentityService) {
		if l != nil {
			s.logger = l
		}
	}
}

// IdentityService resolves usernames through two tiers: a pinned in-process map
// filled once at startup, then the shared cache. It never reads the identity
// store on the resolve path.
type IdentityService struct {
	shared  cache.Store
	userTTL time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	pinned map[string]model.CacheEntry

	// negative maps a missed username to the shared-tier generation observed before the miss.
	negative     *expirable.LRU[string, string]
	negativeSize int
	negativeTTL  time.Duration
}

func NewIdentityService(shared cache.Store, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		shared:       shared,
		userTTL:      defaultUserTTL,
		logger:       slog.Default(),
		pinned:       make(map[string]model.CacheEntry),
		negativeSize: defaultNegativeSize,
		negativeTTL:  defaultNegativeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.negativeSize > 0 && s.negativeTTL > 0 {
		s.negative = expirable.NewLRU[string, string](s.negativeSize, nil, s.negativeTTL)
	}
	return s
}

func (s *IdentityService) Resolve(ctx context.Context, username string) (int64, bool) {
	res := s.Lookup(ctx, username)
	return res.Entry.UserID, res.Found()
}

func (s *IdentityService) Lookup(ctx context.Context, username string) model.Resolution {
	name, ok := model.NormalizeUsername(username)
	if !ok {
		metrics.IdentityLookupsTotal.WithLabelValues("invalid").Inc()
		return model.Absent()
	}

	// 1. [HOT_PATH] pinned tier, always available
	s.mu.Lock()
	entry, ok := s.pinned[name]
	s.mu.Unlock()
	if ok {
		metrics.IdentityLookupsTotal.WithLabelValues(model.SourcePinned.String()).Inc()
		return model.Pinned(entry)
	}

	// 2. [SHARED_TIER] only when it answers a probe
	var gen string
	if s.negative == nil {
		if !s.IsAvailable(ctx) {
			metrics.IdentityLookupsTotal.WithLabelValues("unavailable").Inc()
			return model.Absent()
		}
	} else {
		// [GENERATION_PROBE] the generation read doubles as the availability probe
		var err error
		gen, err = s.generation(ctx)
		metrics.SetAvailable(err == nil)
		if err != nil {
			metrics.IdentityLookupsTotal.WithLabelValues("unavailable").Inc()
			return model.Absent()
		}
		// A remembered miss holds only while no process has written users since.
		if seen, ok := s.negative.Get(name); ok {
			if seen == gen {
				metrics.IdentityLookupsTotal.WithLabelValues("negative").Inc()
				return model.Absent()
			}
			s.negative.Remove(name)
		}
	}

	raw, err := s.shared.Get(ctx, cache.UserKey(name))
	switch {
	case errors.Is(err, cache.ErrMiss):
		if s.negative != nil {
			s.negative.Add(name, gen)
		}
		metrics.IdentityLookupsTotal.WithLabelValues(model.SourceAbsent.String()).Inc()
		return model.Absent()
	case err != nil:
		s.logger.Debug("IDENTITY_SHARED_LOOKUP_FAILED", slog.String("username", name), slog.Any("err", err))
		metrics.IdentityLookupsTotal.WithLabelValues("unavailable").Inc()
		return model.Absent()
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("IDENTITY_CORRUPT_ENTRY", slog.String("username", name), slog.String("value", raw))
		metrics.IdentityLookupsTotal.WithLabelValues(model.SourceAbsent.String()).Inc()
		return model.Absent()
	}

	metrics.IdentityLookupsTotal.WithLabelValues(model.SourceCached.String()).Inc()
	// ExpiresAt is an upper bound; the shared tier enforces the real TTL.
	return model.Cached(model.CacheEntry{
		UserID:    id,
		Username:  name,
		ExpiresAt: time.Now().Add(s.userTTL),
	})
}

// Set upserts one mapping into the shared tier. The pinned tier is startup-only.
func (s *IdentityService) Set(ctx context.Context, username string, userID int64) error {
	name, ok := model.NormalizeUsername(username)
	if !ok {
		return fmt.Errorf("identity set %q: %w", username, model.ErrInvalidUsername)
	}
	if s.negative != nil {
		s.negative.Remove(name)
	}
	if err := s.shared.Set(ctx, cache.UserKey(name), strconv.FormatInt(userID, 10), s.userTTL); err != nil {
		return fmt.Errorf("identity set %q: %w", name, err)
	}
	s.bumpGeneration(ctx)
	return nil
}

// Sync never fails: a write interrupted mid-batch still reports what it confirmed.
func (s *IdentityService) Sync(ctx context.Context, users []model.User) int {
	entries := make([]cache.Entry, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		name, ok := model.NormalizeUsername(u.Username)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, cache.Entry{Key: cache.UserKey(name), Value: strconv.FormatInt(u.ID, 10)})
	}
	if s.negative != nil {
		s.negative.Purge()
	}
	if len(entries) == 0 {
		return 0
	}

	n, err := s.shared.SetMany(ctx, entries, s.userTTL)
	if err != nil {
		s.logger.Warn("IDENTITY_SYNC_PARTIAL",
			slog.Int("written", n),
			slog.Int("total", len(entries)),
			slog.Any("err", err))
	}
	if n > 0 {
		s.bumpGeneration(ctx)
	}
	return n
}

// generation reads the shared write counter; a missing counter is generation "0".
func (s *IdentityService) generation(ctx context.Context) (string, error) {
	gen, err := s.shared.Get(ctx, cache.GenerationKey)
	if errors.Is(err, cache.ErrMiss) {
		return "0", nil
	}
	return gen, err
}

// bumpGeneration invalidates remembered misses in every process.
func (s *IdentityService) bumpGeneration(ctx context.Context) {
	if _, err := s.shared.Incr(ctx, cache.GenerationKey); err != nil {
		s.logger.Debug("IDENTITY_GENERATION_BUMP_FAILED", slog.Any("err", err))
	}
}

// IsAvailable pings the shared tier on every call instead of trusting a cached flag.
func (s *IdentityService) IsAvailable(ctx context.Context) bool {
	ok := s.shared.Ping(ctx) == nil
	metrics.SetAvailable(ok)
	return ok
}

// PreloadPinned fills the pinned tier from the identity store and mirrors each
// entry into the shared tier. Failures are logged and skipped. It returns the
// number of pinned users loaded.
func (s *IdentityService) PreloadPinned(ctx context.Context, dir Directory, usernames []string) int {
	loaded := 0
	for _, raw := range usernames {
		name, ok := model.NormalizeUsername(raw)
		if !ok {
			continue
		}
		u, err := dir.FindByUsername(ctx, name)
		if err != nil {
			s.logger.Warn("PINNED_PRELOAD_SKIPPED", slog.String("username", name), slog.Any("err", err))
			continue
		}

		s.mu.Lock()
		s.pinned[name] = model.CacheEntry{UserID: u.ID, Username: name}
		s.mu.Unlock()
		loaded++

		if err := s.Set(ctx, name, u.ID); err != nil {
			s.logger.Debug("PINNED_SHARED_WRITE_FAILED", slog.String("username", name), slog.Any("err", err))
		}
	}
	s.logger.Info("PINNED_USERS_PRELOADED", slog.Int("loaded", loaded), slog.Int("requested", len(usernames)))
	return loaded
}

// PinnedCount returns the size of the pinned tier.
func (s *IdentityService) PinnedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pinned)
}
