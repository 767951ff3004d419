package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/DISPATCHER/TRANSPORT)
// This allows mocking and decoupling from the concrete implementation
type Connector interface {
	GetID() string
	GetUsername() string
	GetKind() model.ChannelKind
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{} // Closed once the connection is terminated
	LastActivity() time.Time
	Touch(at time.Time)
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id        string
	username  string
	kind      model.ChannelKind
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	// sendCh is never closed: transports select on Done() instead, so a
	// concurrent Send can never hit a closed channel.
	sendCh chan event.Eventer

	closeOnce      sync.Once
	lastActivityAt atomic.Int64 // [ATOMIC_FIELD] unix nanos
	droppedCount   atomic.Uint64
}

// NewConnector creates a session bound to ctx. The username must already be normalized.
func NewConnector(ctx context.Context, username string, kind model.ChannelKind, bufferSize int) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)

	c := &connect{
		id:        uuid.NewString(),
		username:  username,
		kind:      kind,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan event.Eventer, bufferSize),
	}
	c.lastActivityAt.Store(c.createdAt.UnixNano())
	return c
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() string              { return c.id }
func (c *connect) GetUsername() string        { return c.username }
func (c *connect) GetKind() model.ChannelKind { return c.kind }
func (c *connect) Recv() <-chan event.Eventer { return c.sendCh }
func (c *connect) Done() <-chan struct{}      { return c.ctx.Done() }
func (c *connect) Dropped() uint64            { return c.droppedCount.Load() }

func (c *connect) LastActivity() time.Time {
	return time.Unix(0, c.lastActivityAt.Load())
}

func (c *connect) Touch(at time.Time) {
	c.lastActivityAt.Store(at.UnixNano())
}

// Send enqueues an event for the transport pump.
// The call never blocks longer than timeout, so one stalled session cannot hold up a broadcast.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	// 2. [FAST_PATH] Buffer has room.
	select {
	case c.sendCh <- ev:
		return true
	default:
	}

	return c.handleBackpressure(ev, timeout)
}

// handleBackpressure manages full buffers.
// Low priority signals are shed at once; everything else waits up to timeout for room.
// Queued events are never reordered, which keeps per-session FIFO intact.
func (c *connect) handleBackpressure(ev event.Eventer, timeout time.Duration) bool {
	if ev.GetPriority() <= event.PriorityLow || timeout <= 0 {
		c.droppedCount.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	case <-timer.C:
		// [BACKPRESSURE_THRESHOLD] persistent slow consumer
		c.droppedCount.Add(1)
		return false
	}
}

// Close terminates the session. It is idempotent and safe to call from the
// reaper, the transport handler and shutdown concurrently.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
