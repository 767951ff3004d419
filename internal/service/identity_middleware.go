package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
)

// ResolverMiddleware implements [DECORATOR_PATTERN] to add observability
// to identity resolution without touching the tier logic.
type ResolverMiddleware struct {
	Next   Resolver
	Logger *slog.Logger
}

func NewResolverMiddleware(next Resolver, logger *slog.Logger) Resolver {
	return &ResolverMiddleware{Next: next, Logger: logger}
}

func (m *ResolverMiddleware) Resolve(ctx context.Context, username string) (int64, bool) {
	res := m.Lookup(ctx, username)
	return res.Entry.UserID, res.Found()
}

func (m *ResolverMiddleware) Lookup(ctx context.Context, username string) model.Resolution {
	start := time.Now()
	res := m.Next.Lookup(ctx, username)

	m.Logger.Debug("IDENTITY_LOOKUP",
		"username", username,
		"source", res.Source.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (m *ResolverMiddleware) Set(ctx context.Context, username string, userID int64) error {
	err := m.Next.Set(ctx, username, userID)
	if err != nil {
		m.Logger.Warn("IDENTITY_SET_FAILED",
			"username", username,
			"user_id", userID,
			"err", err,
		)
	}
	return err
}

func (m *ResolverMiddleware) Sync(ctx context.Context, users []model.User) int {
	start := time.Now()
	n := m.Next.Sync(ctx, users)

	m.Logger.Debug("IDENTITY_SYNC_BATCH",
		"requested", len(users),
		"written", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n
}

func (m *ResolverMiddleware) IsAvailable(ctx context.Context) bool {
	ok := m.Next.IsAvailable(ctx)
	if !ok {
		m.Logger.Debug("SHARED_CACHE_UNAVAILABLE")
	}
	return ok
}
