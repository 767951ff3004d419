package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/code-delivery-service/config"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/service"
)

const poisonSuffix = ".poison"

// Presence answers whether this node holds any session for a username.
type Presence interface {
	HasSessions(username string) bool
}

type MessageHandler struct {
	logger   *slog.Logger
	ingester service.Ingester
	presence Presence
	cfg      config.AMQPConfig
}

func NewMessageHandler(logger *slog.Logger, ingester service.Ingester, presence Presence, cfg *config.Config) *MessageHandler {
	return &MessageHandler{
		logger:   logger.With(slog.String("component", "amqp_ingest")),
		ingester: ingester,
		presence: presence,
		cfg:      cfg.AMQP,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, factory *pubsub.AMQPFactory) error {
	publisher, err := factory.BuildPublisher()
	if err != nil {
		return err
	}
	poisonTopic := h.cfg.Queue + poisonSuffix
	poison, err := middleware.PoisonQueue(publisher, poisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_CODE_INGESTED", h.cfg.Topic, Bind(h, h.OnCodeIngestedV1)},
	}

	instanceID := uuid.NewString()[:8]
	for _, c := range configs {
		// [UNIQUE_NODE_QUEUE]
		// Each node binds its own queue so every node sees every ingest message.
		// Format: code-delivery.ingest.v1.b23a8f12.ON_CODE_INGESTED
		queue := fmt.Sprintf("%s.%s.%s", h.cfg.Queue, instanceID, c.name)

		sub, err := factory.BuildSubscriber(queue)
		if err != nil {
			return err
		}

		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware(h.logger).Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", h.cfg.Queue, "exchange", h.cfg.Exchange, "topic", h.cfg.Topic)
	return nil
}
