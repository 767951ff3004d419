package service

import (
	"context"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
)

type registryStats interface {
	Stats() model.RegistryStats
}

type groupStats interface {
	Groups() int
}

type syncStats interface {
	Stats() model.SyncStats
}

// StatsCollector assembles the operational snapshot served at /stats.
type StatsCollector struct {
	registry  registryStats
	groups    groupStats
	identity  Resolver
	sync      syncStats
	startedAt time.Time
}

func NewStatsCollector(reg registryStats, groups groupStats, identity Resolver, sync syncStats) *StatsCollector {
	return &StatsCollector{
		registry:  reg,
		groups:    groups,
		identity:  identity,
		sync:      sync,
		startedAt: time.Now(),
	}
}

func (c *StatsCollector) Snapshot(ctx context.Context) model.ServerStats {
	return model.ServerStats{
		Registry:       c.registry.Stats(),
		PushGroups:     c.groups.Groups(),
		CacheAvailable: c.identity.IsAvailable(ctx),
		Sync:           c.sync.Stats(),
		Uptime:         time.Since(c.startedAt).Truncate(time.Second).String(),
	}
}
