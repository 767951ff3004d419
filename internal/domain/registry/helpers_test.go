package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStream(t *testing.T, username string) Connector {
	t.Helper()
	conn := NewConnector(context.Background(), username, model.ChannelStream, 8)
	t.Cleanup(conn.Close)
	return conn
}

func ids(conns []Connector) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.GetID())
	}
	return out
}

// sharedID wraps a connector under a chosen id to model an id collision.
type sharedID struct {
	Connector
	id string
}

func (c *sharedID) GetID() string { return c.id }
