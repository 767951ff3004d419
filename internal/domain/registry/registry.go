/*
Package registry tracks every live client session and keeps the set accurate.

Key Architectural Concepts:
  - Single Owner: the Registry is the only structure that knows which connections
    are alive. Transport handlers register and unregister, the Reaper evicts.
  - Snapshot Reads: ConnectionsFor copies the matching entries under the lock and
    returns them, so callers iterate and send without holding it.
  - Plain Mutex: one non-reentrant sync.Mutex guards the maps. It protects the map
    structure only, never a send.
  - Liveness: every connection carries an atomic last-activity timestamp bumped by
    Touch. The Reaper evicts entries whose timestamp falls behind a cutoff.
*/
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/metrics"
)

// Registrar defines the gateway used by transports, the dispatcher and the reaper.
type Registrar interface {
	Register(conn Connector)
	Touch(connID string) bool
	Unregister(connID string) bool
	UnregisterConn(conn Connector) bool
	ConnectionsFor(username string) []Connector
	Evict(cutoff time.Time) []Connector
	Stats() model.RegistryStats
	Now() time.Time
}

var _ Registrar = (*Registry)(nil)

// Registry implements the connection registry.
type Registry struct {
	mu sync.Mutex

	// conns is keyed by connection id.
	conns map[string]Connector
	// byUser indexes conns by normalized username.
	byUser map[string]map[string]Connector

	now    func() time.Time
	logger *slog.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns:  make(map[string]Connector),
		byUser: make(map[string]map[string]Connector),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// Register inserts a connection and stamps its activity with the registry clock.
// Reusing an id is a caller bug; it is logged and the last write wins.
func (r *Registry) Register(conn Connector) {
	conn.Touch(r.now())

	r.mu.Lock()
	prev, exists := r.conns[conn.GetID()]
	if exists {
		r.removeLocked(prev)
	}
	r.conns[conn.GetID()] = conn
	bucket, ok := r.byUser[conn.GetUsername()]
	if !ok {
		bucket = make(map[string]Connector)
		r.byUser[conn.GetUsername()] = bucket
	}
	bucket[conn.GetID()] = conn
	r.mu.Unlock()

	metrics.ConnectionsActive.WithLabelValues(conn.GetKind().String()).Inc()

	if exists {
		r.logger.Error("REGISTRY_DUPLICATE_CONNECTION_ID",
			slog.String("conn_id", conn.GetID()),
			slog.String("username", conn.GetUsername()),
		)
	}
}

// Touch records a liveness signal. It reports false for unknown ids.
func (r *Registry) Touch(connID string) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	r.mu.Unlock()

	if ok {
		conn.Touch(r.now())
	}
	return ok
}

// Unregister removes a connection. Unknown ids are a no-op.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		r.removeLocked(conn)
	}
	r.mu.Unlock()
	return ok
}

// UnregisterConn removes conn only while it still owns its id, so a session
// displaced by a duplicate id cannot remove its replacement.
func (r *Registry) UnregisterConn(conn Connector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[conn.GetID()]; !ok || current != conn {
		return false
	}
	r.removeLocked(conn)
	return true
}

// ConnectionsFor returns a snapshot of every live connection of a user.
func (r *Registry) ConnectionsFor(username string) []Connector {
	normalized, ok := model.NormalizeUsername(username)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.byUser[normalized]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Connector, 0, len(bucket))
	for _, conn := range bucket {
		out = append(out, conn)
	}
	return out
}

// Evict removes and returns every connection whose last activity is before cutoff.
// Closing the returned connections is the caller's job.
func (r *Registry) Evict(cutoff time.Time) []Connector {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []Connector
	for _, conn := range r.conns {
		if conn.LastActivity().Before(cutoff) {
			stale = append(stale, conn)
		}
	}
	for _, conn := range stale {
		r.removeLocked(conn)
	}
	return stale
}

func (r *Registry) Stats() model.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := model.RegistryStats{
		TotalConnections: len(r.conns),
		Users:            len(r.byUser),
	}
	for _, conn := range r.conns {
		switch conn.GetKind() {
		case model.ChannelStream:
			stats.StreamConnections++
		case model.ChannelPush:
			stats.PushConnections++
		}
	}
	return stats
}

// Shutdown closes and drops every connection.
func (r *Registry) Shutdown() int {
	r.mu.Lock()
	all := make([]Connector, 0, len(r.conns))
	for _, conn := range r.conns {
		all = append(all, conn)
	}
	for _, conn := range all {
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	for _, conn := range all {
		conn.Close()
	}
	return len(all)
}

// removeLocked drops conn from both maps. The caller holds r.mu.
func (r *Registry) removeLocked(conn Connector) {
	id := conn.GetID()
	if current, ok := r.conns[id]; !ok || current != conn {
		return
	}
	delete(r.conns, id)
	if bucket, ok := r.byUser[conn.GetUsername()]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(r.byUser, conn.GetUsername())
		}
	}
	metrics.ConnectionsActive.WithLabelValues(conn.GetKind().String()).Dec()
}
