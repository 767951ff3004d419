package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

func newIdentity(shared *memCache) *IdentityService {
	return NewIdentityService(shared, WithIdentityLogger(discard), WithUserTTL(time.Hour))
}

func TestResolvePinnedUserIgnoresSharedTier(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)
	dir := &memDirectory{users: []model.User{{ID: 7, Username: "alice"}}}

	require.Equal(t, 1, s.PreloadPinned(ctx, dir, []string{"alice"}))
	shared.setDown(true)

	for _, name := range []string{"ALICE", "  alice ", "Alice"} {
		id, ok := s.Resolve(ctx, name)
		assert.True(t, ok, name)
		assert.Equal(t, int64(7), id, name)
	}

	res := s.Lookup(ctx, "alice")
	assert.Equal(t, model.SourcePinned, res.Source)
	assert.True(t, res.Entry.NeverExpires())
}

func TestPreloadPinnedMirrorsToSharedTier(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)
	dir := &memDirectory{users: []model.User{{ID: 7, Username: "Alice"}, {ID: 9, Username: "root"}}}

	loaded := s.PreloadPinned(ctx, dir, []string{"alice", "ghost", "", "ROOT"})

	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, s.PinnedCount())
	assert.Equal(t, "7", shared.snapshot()["user:alice"])
	assert.Equal(t, "9", shared.snapshot()["user:root"])
}

func TestPreloadPinnedSurvivesStoreOutage(t *testing.T) {
	s := newIdentity(newMemCache())

	loaded := s.PreloadPinned(context.Background(), &memDirectory{err: errStoreDown}, []string{"alice"})

	assert.Zero(t, loaded)
}

func TestResolveUnpinnedWithUnavailableTier(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)
	require.NoError(t, s.Set(ctx, "bob", 42))

	shared.setDown(true)

	id, ok := s.Resolve(ctx, "bob")
	assert.False(t, ok)
	assert.Zero(t, id)
	assert.False(t, s.IsAvailable(ctx))
}

func TestResolveFromSharedTier(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)

	require.NoError(t, s.Set(ctx, " Bob ", 42))
	assert.Equal(t, time.Hour, shared.ttls["user:bob"])

	res := s.Lookup(ctx, "BOB")
	assert.Equal(t, model.SourceCached, res.Source)
	assert.Equal(t, int64(42), res.Entry.UserID)
	assert.Equal(t, "bob", res.Entry.Username)
	assert.False(t, res.Entry.NeverExpires())
}

func TestResolveInvalidUsernames(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)

	tests := []struct {
		name     string
		username string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", string(make([]byte, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := s.Resolve(ctx, tt.username)
			assert.False(t, ok)
		})
	}
	assert.Zero(t, shared.pings, "invalid names never reach the shared tier")

	assert.ErrorIs(t, s.Set(ctx, " ", 1), model.ErrInvalidUsername)
}

func TestCorruptSharedEntryIsAbsent(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	shared.data["user:eve"] = "not-a-number"

	_, ok := newIdentity(shared).Resolve(ctx, "eve")
	assert.False(t, ok)
}

func TestNegativeCache(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := NewIdentityService(shared, WithIdentityLogger(discard), WithNegativeCache(16, time.Minute))

	_, ok := s.Resolve(ctx, "carol")
	require.False(t, ok)
	pings := shared.pings

	// remembered miss skips the shared tier
	shared.data["user:carol"] = "5"
	_, ok = s.Resolve(ctx, "carol")
	assert.False(t, ok)
	assert.Equal(t, pings, shared.pings)

	// a write forgets the miss
	require.NoError(t, s.Set(ctx, "carol", 5))
	id, ok := s.Resolve(ctx, "carol")
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
}

func TestNegativeCacheSeesWritesFromOtherProcesses(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newNode := func() *IdentityService {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewIdentityService(cache.NewRedisCache(client, cache.WithLogger(discard)),
			WithIdentityLogger(discard), WithNegativeCache(16, time.Minute))
	}
	nodeA, nodeB := newNode(), newNode()

	_, ok := nodeA.Resolve(ctx, "dave")
	require.False(t, ok)

	require.NoError(t, nodeB.Set(ctx, "dave", 9))
	id, ok := nodeA.Resolve(ctx, "dave")
	assert.True(t, ok, "a set on another node invalidates the remembered miss")
	assert.Equal(t, int64(9), id)

	_, ok = nodeA.Resolve(ctx, "erin")
	require.False(t, ok)
	require.Equal(t, 1, nodeB.Sync(ctx, []model.User{{ID: 11, Username: "erin"}}))
	id, ok = nodeA.Resolve(ctx, "erin")
	assert.True(t, ok, "a sync on another node invalidates the remembered miss")
	assert.Equal(t, int64(11), id)
}

func TestNegativeCacheHoldsWithoutWrites(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := NewIdentityService(shared, WithIdentityLogger(discard), WithNegativeCache(16, time.Minute))

	_, ok := s.Resolve(ctx, "frank")
	require.False(t, ok)

	// written behind the service's back without a generation bump
	shared.data["user:frank"] = "4"
	_, ok = s.Resolve(ctx, "frank")
	assert.False(t, ok)

	shared.counters[cache.GenerationKey]++
	id, ok := s.Resolve(ctx, "frank")
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)
}

func TestNegativeCacheDisabled(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := NewIdentityService(shared, WithIdentityLogger(discard), WithNegativeCache(0, 0))

	_, ok := s.Resolve(ctx, "dave")
	require.False(t, ok)

	shared.data["user:dave"] = "3"
	id, ok := s.Resolve(ctx, "dave")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

func TestSyncBestEffort(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	shared.failAfter = 2
	s := newIdentity(shared)

	n := s.Sync(ctx, []model.User{
		{ID: 1, Username: "a"},
		{ID: 2, Username: "B"},
		{ID: 3, Username: "c"},
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"user:a": "1", "user:b": "2"}, shared.snapshot())
}

func TestSyncSkipsInvalidAndDuplicates(t *testing.T) {
	ctx := context.Background()
	shared := newMemCache()
	s := newIdentity(shared)

	n := s.Sync(ctx, []model.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: " "},
		{ID: 3, Username: "ALICE"},
	})

	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]string{"user:alice": "1"}, shared.snapshot())
	assert.Zero(t, s.Sync(ctx, nil))
}
