package registry

import (
	"log/slog"
	"time"
)

// Option defines a functional configuration type for the Registry.
type Option func(*Registry)

// WithClock replaces the time source used for activity timestamps.
// Tests use it to simulate elapsed time.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// ReaperOption defines a functional configuration type for the Reaper.
type ReaperOption func(*Reaper)

// WithReapInterval configures how often the [JANITOR] process runs.
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithStaleTimeout defines the [QUIET_PERIOD] after which a connection
// without any liveness signal is evicted.
func WithStaleTimeout(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithJoinTimeout bounds how long Stop waits for an in-flight sweep.
func WithJoinTimeout(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.joinTimeout = d
		}
	}
}

// WithReaperLogger sets the reaper logger.
func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}
