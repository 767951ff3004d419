package service

import (
	"context"
	"log/slog"

	"github.com/webitel/code-delivery-service/config"
	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/adapter/store"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

func component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", name))
}

var Module = fx.Module(
	"service",

	fx.Provide(
		func(s *store.PostgresStore) Directory { return s },
		func(s *store.PostgresStore) RateSource { return s },

		func(cfg *config.Config, shared cache.Store, logger *slog.Logger) *IdentityService {
			return NewIdentityService(shared,
				WithUserTTL(cfg.Redis.UserTTL),
				WithNegativeCache(cfg.Identity.NegativeSize, cfg.Identity.NegativeTTL),
				WithIdentityLogger(component(logger, "identity")),
			)
		},
		// [DECORATION_LAYER] Every consumer, inside or outside this module, gets the logging Resolver
		func(s *IdentityService, logger *slog.Logger) Resolver {
			return NewResolverMiddleware(s, component(logger, "identity"))
		},

		func(cfg *config.Config, dir Directory, identity Resolver, logger *slog.Logger) *DirectorySyncWorker {
			return NewDirectorySyncWorker(dir, identity, cfg.Sync.Interval, cfg.Sync.StopTimeout, component(logger, "directory_sync"))
		},
		func(cfg *config.Config, src RateSource, shared cache.Store, logger *slog.Logger) *RatesWarmer {
			return NewRatesWarmer(src, shared, cfg.Rates.TTL, component(logger, "rates"))
		},

		fx.Annotate(
			func(cfg *config.Config, reg registry.Registrar, groups pubsub.GroupPublisher, logger *slog.Logger) *Dispatcher {
				return NewDispatcher(reg, groups,
					WithSendTimeout(cfg.Delivery.SendTimeout),
					WithParallelism(cfg.Delivery.Parallelism),
					WithEvictOnSendFailure(cfg.Delivery.EvictOnSendFailure),
					WithDispatcherLogger(component(logger, "dispatcher")),
				)
			},
			fx.As(new(Broadcaster)),
		),
		fx.Annotate(
			func(cfg *config.Config, reg registry.Registrar, groups pubsub.GroupJoiner, logger *slog.Logger) *DeliveryService {
				return NewDeliveryService(reg, groups, cfg.Delivery.BufferSize, component(logger, "delivery"))
			},
			fx.As(new(Deliverer)),
		),
		func(reg *registry.Registry, groups *pubsub.GroupBus, identity Resolver, worker *DirectorySyncWorker) *StatsCollector {
			return NewStatsCollector(reg, groups, identity, worker)
		},
		fx.Annotate(
			func(identity Resolver, b Broadcaster, logger *slog.Logger) *IngestService {
				return NewIngestService(identity, b, component(logger, "ingest"))
			},
			fx.As(new(Ingester)),
		),
	),

	// [STARTUP_CONTRACT] preload, warm-up and sync are best-effort and never abort startup
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, identity *IdentityService, dir Directory, rates *RatesWarmer, worker *DirectorySyncWorker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				identity.PreloadPinned(ctx, dir, cfg.Identity.PinnedUsers)
				if cfg.Rates.Enabled {
					rates.Warm(ctx)
				}
				if cfg.Sync.Enabled {
					worker.Start(ctx)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				worker.Stop()
				return nil
			},
		})
	}),
)
