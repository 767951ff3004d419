package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/code-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(cfg *config.Config, wm watermill.LoggerAdapter, logger *slog.Logger) *GroupBus {
			return NewGroupBus(wm, logger.With(slog.String("component", "group_bus")), cfg.Delivery.SendTimeout)
		},
		func(b *GroupBus) GroupPublisher { return b },
		func(b *GroupBus) GroupJoiner { return b },
		func(cfg *config.Config, wm watermill.LoggerAdapter) *AMQPFactory {
			return NewAMQPFactory(cfg.AMQP.URL, cfg.AMQP.Exchange, wm)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, b *GroupBus) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return b.Close()
			},
		})
	}),
)
