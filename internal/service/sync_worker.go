package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/metrics"
)

const (
	DefaultSyncInterval    = 300 * time.Second
	DefaultSyncJoinTimeout = 5 * time.Second
)

// DirectorySyncWorker copies the full user directory into the shared tier on a
// fixed period. Failures are logged and retried on the next tick.
type DirectorySyncWorker struct {
	dir         Directory
	identity    Resolver
	interval    time.Duration
	joinTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}

	statsMu sync.Mutex
	stats   model.SyncStats
}

func NewDirectorySyncWorker(dir Directory, identity Resolver, interval, joinTimeout time.Duration, logger *slog.Logger) *DirectorySyncWorker {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if joinTimeout <= 0 {
		joinTimeout = DefaultSyncJoinTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectorySyncWorker{
		dir:         dir,
		identity:    identity,
		interval:    interval,
		joinTimeout: joinTimeout,
		logger:      logger,
	}
}

// Start runs one sync synchronously so the tier is warm, then starts the
// periodic loop. Calling Start on a running worker is a no-op.
func (w *DirectorySyncWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	doneCh := w.doneCh
	w.mu.Unlock()

	w.setRunning(true)
	w.SyncAllUsers(ctx)

	go w.loop(loopCtx, doneCh)
	w.logger.Info("DIRECTORY_SYNC_STARTED", slog.Duration("interval", w.interval))
}

// Stop cancels the loop and waits at most the join timeout for it to exit.
func (w *DirectorySyncWorker) Stop() bool {
	w.mu.Lock()
	cancel, doneCh := w.cancel, w.doneCh
	w.cancel, w.doneCh = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()
	w.setRunning(false)

	select {
	case <-doneCh:
		return true
	case <-time.After(w.joinTimeout):
		w.logger.Warn("DIRECTORY_SYNC_STOP_TIMEOUT", slog.Duration("waited", w.joinTimeout))
		return false
	}
}

func (w *DirectorySyncWorker) loop(ctx context.Context, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SyncAllUsers(ctx)
		}
	}
}

// SyncAllUsers pulls every user from the directory and writes the valid ones
// to the shared tier. It returns the number written and never fails: an
// unavailable tier or an unreachable store yields 0.
func (w *DirectorySyncWorker) SyncAllUsers(ctx context.Context) (written int) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("DIRECTORY_SYNC_PANIC_RECOVERED", slog.String("err", fmt.Sprint(rec)))
			w.record("panic", 0)
			written = 0
		}
	}()

	if !w.identity.IsAvailable(ctx) {
		w.logger.Warn("DIRECTORY_SYNC_SKIPPED", slog.String("reason", "shared cache unavailable"))
		w.record("unavailable", 0)
		return 0
	}

	users, err := w.dir.ListUsers(ctx)
	if err != nil {
		w.logger.Error("DIRECTORY_SYNC_STORE_FAILED", slog.Any("err", err))
		w.record("store_error", 0)
		return 0
	}

	valid := make([]model.User, 0, len(users))
	for _, u := range users {
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" {
			continue
		}
		valid = append(valid, u)
	}

	written = w.identity.Sync(ctx, valid)
	w.record("ok", written)
	w.logger.Info("DIRECTORY_SYNC_COMPLETED",
		slog.Int("read", len(users)),
		slog.Int("valid", len(valid)),
		slog.Int("written", written))
	return written
}

func (w *DirectorySyncWorker) record(outcome string, written int) {
	metrics.SyncRunsTotal.WithLabelValues(outcome).Inc()

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.TotalRuns++
	if outcome != "ok" {
		w.stats.Failed++
		return
	}
	metrics.SyncUsersWritten.Set(float64(written))
	w.stats.LastCount = written
	w.stats.LastRunAt = time.Now()
}

func (w *DirectorySyncWorker) setRunning(v bool) {
	w.statsMu.Lock()
	w.stats.Running = v
	w.statsMu.Unlock()
}

func (w *DirectorySyncWorker) Stats() model.SyncStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}
