package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepEvictsStaleConnection(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now))
	reaper := NewReaper(r, WithStaleTimeout(120*time.Second))

	conn := newStream(t, "bob")
	r.Register(conn)

	clock.Advance(121 * time.Second)

	assert.Equal(t, 1, reaper.Sweep())
	assert.Empty(t, r.ConnectionsFor("bob"))

	select {
	case <-conn.Done():
	default:
		t.Fatal("evicted connection was not closed")
	}
}

func TestSweepKeepsTouchedConnection(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now))
	reaper := NewReaper(r, WithStaleTimeout(120*time.Second))

	fresh := newStream(t, "bob")
	stale := newStream(t, "bob")
	r.Register(fresh)
	r.Register(stale)

	clock.Advance(100 * time.Second)
	r.Touch(fresh.GetID())
	clock.Advance(21 * time.Second)

	assert.Equal(t, 1, reaper.Sweep())
	assert.Equal(t, []string{fresh.GetID()}, ids(r.ConnectionsFor("bob")))
}

func TestSweepIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now))
	reaper := NewReaper(r, WithStaleTimeout(time.Minute))

	r.Register(newStream(t, "bob"))
	r.Register(newStream(t, "alice"))
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 2, reaper.Sweep())
	assert.Equal(t, 0, reaper.Sweep())
}

func TestSweepToleratesConcurrentUnregister(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now))
	reaper := NewReaper(r, WithStaleTimeout(time.Minute))

	conn := newStream(t, "bob")
	r.Register(conn)
	clock.Advance(2 * time.Minute)

	r.Unregister(conn.GetID())
	assert.Equal(t, 0, reaper.Sweep())
}

func TestReaperStartStop(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(WithClock(clock.Now))
	reaper := NewReaper(r,
		WithReapInterval(10*time.Millisecond),
		WithStaleTimeout(time.Minute),
		WithJoinTimeout(time.Second),
	)

	conn := newStream(t, "bob")
	r.Register(conn)
	clock.Advance(2 * time.Minute)

	reaper.Start()
	reaper.Start() // second start is a no-op

	assert.Eventually(t, func() bool {
		return len(r.ConnectionsFor("bob")) == 0
	}, time.Second, 5*time.Millisecond)

	assert.True(t, reaper.Stop())
	assert.True(t, reaper.Stop())
}
