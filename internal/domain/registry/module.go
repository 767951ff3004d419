package registry

import (
	"context"
	"log/slog"

	"github.com/webitel/code-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(logger *slog.Logger) *Registry {
			return NewRegistry(WithLogger(logger.With(slog.String("component", "registry"))))
		},
		func(r *Registry) Registrar { return r },
		// [CLEAN_INJECTION] Configure Reaper using Functional Options
		func(cfg *config.Config, r Registrar, logger *slog.Logger) *Reaper {
			return NewReaper(r,
				WithReapInterval(cfg.Reaper.Interval),
				WithStaleTimeout(cfg.Reaper.Timeout),
				WithJoinTimeout(cfg.Reaper.StopTimeout),
				WithReaperLogger(logger.With(slog.String("component", "reaper"))),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, reaper *Reaper, r *Registry) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				reaper.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				reaper.Stop()
				r.Shutdown() // [GRACEFUL_SHUTDOWN] release every live session
				return nil
			},
		})
	}),
)
