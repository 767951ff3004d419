package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

// registryPresence adapts the connection registry to Presence.
type registryPresence struct {
	registry registry.Registrar
}

func (p registryPresence) HasSessions(username string) bool {
	return len(p.registry.ConnectionsFor(username)) > 0
}

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(r registry.Registrar) Presence { return registryPresence{registry: r} },
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(h *MessageHandler, router *message.Router, factory *pubsub.AMQPFactory) error {
		return h.RegisterHandlers(router, factory)
	}),

	fx.Invoke(func(lc fx.Lifecycle, router *message.Router) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					_ = router.Run(context.Background())
				}()
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(ctx context.Context) error {
				return router.Close()
			},
		})
	}),
)
