package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/code-delivery-service/internal/metrics"
)

const (
	DefaultReapInterval = 60 * time.Second
	DefaultStaleTimeout = 120 * time.Second
	DefaultJoinTimeout  = 5 * time.Second
)

// Reaper periodically evicts connections that stopped signalling liveness.
// Ungraceful disconnects (closed laptop lids, dropped proxies) never reach the
// explicit unregister path, so without it the registry only grows.
type Reaper struct {
	registry    Registrar
	interval    time.Duration
	timeout     time.Duration
	joinTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewReaper(registry Registrar, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		registry:    registry,
		interval:    DefaultReapInterval,
		timeout:     DefaultStaleTimeout,
		joinTimeout: DefaultJoinTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the sweep loop. Calling Start on a running reaper is a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(r.stopCh, r.doneCh)

	r.logger.Info("REAPER_STARTED",
		slog.Duration("interval", r.interval),
		slog.Duration("timeout", r.timeout),
	)
}

// Stop signals the loop and waits at most the join timeout for it to exit.
// It reports whether the loop finished within that window.
func (r *Reaper) Stop() bool {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh, r.doneCh = nil, nil
	r.mu.Unlock()

	if stopCh == nil {
		return true
	}
	close(stopCh)

	select {
	case <-doneCh:
		return true
	case <-time.After(r.joinTimeout):
		r.logger.Warn("REAPER_STOP_TIMEOUT", slog.Duration("waited", r.joinTimeout))
		return false
	}
}

func (r *Reaper) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.safeSweep()
		}
	}
}

// safeSweep keeps the loop alive whatever a single sweep does.
func (r *Reaper) safeSweep() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("REAPER_PANIC_RECOVERED", slog.String("err", fmt.Sprint(rec)))
		}
	}()
	r.Sweep()
}

// Sweep evicts every connection idle for longer than the timeout and closes
// its transport. It returns the number of evicted connections.
func (r *Reaper) Sweep() int {
	cutoff := r.registry.Now().Add(-r.timeout)
	stale := r.registry.Evict(cutoff)

	for _, conn := range stale {
		closeQuietly(conn)
	}

	if n := len(stale); n > 0 {
		metrics.ReaperEvictionsTotal.Add(float64(n))
		r.logger.Info("REAPER_EVICTED_STALE_CONNECTIONS",
			slog.Int("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return len(stale)
}

// closeQuietly releases a transport; a failing Close must not stop the sweep.
func closeQuietly(conn Connector) {
	defer func() { _ = recover() }()
	conn.Close()
}
