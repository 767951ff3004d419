// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "code_delivery"

var (
	// Registry metrics
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "connections_active",
		Help:      "Number of live connections, by channel kind.",
	}, []string{"kind"})

	ReaperEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "reaper_evictions_total",
		Help:      "Total connections evicted for inactivity.",
	})

	// Dispatcher metrics
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "broadcasts_total",
		Help:      "Total broadcast calls, by outcome.",
	}, []string{"outcome"})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "sends_total",
		Help:      "Total per-target sends, by channel kind and result.",
	}, []string{"kind", "result"})

	BroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "broadcast_duration_seconds",
		Help:      "Broadcast fan-out duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// Identity metrics
	IdentityLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "identity",
		Name:      "lookups_total",
		Help:      "Total username lookups, by answering tier.",
	}, []string{"source"})

	SharedCacheAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "identity",
		Name:      "shared_cache_available",
		Help:      "Whether the shared cache tier answered the last probe (1 = yes).",
	})

	// Directory sync metrics
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "directory_sync",
		Name:      "runs_total",
		Help:      "Total directory sync runs, by outcome.",
	}, []string{"outcome"})

	SyncUsersWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "directory_sync",
		Name:      "users_written",
		Help:      "Users written to the shared cache tier by the last sync run.",
	})
)

// SetAvailable records the shared cache tier probe result.
func SetAvailable(ok bool) {
	if ok {
		SharedCacheAvailable.Set(1)
		return
	}
	SharedCacheAvailable.Set(0)
}
