package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
)

const DefaultBufferSize = 64

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (SSE/long-poll/WebSocket)
type Deliverer interface {
	Subscribe(ctx context.Context, username string, kind model.ChannelKind) (registry.Connector, error)
	Unsubscribe(conn registry.Connector)
	// Touch records a liveness signal for a connection.
	Touch(connID string)
}

type DeliveryService struct {
	registry   registry.Registrar
	groups     pubsub.GroupJoiner
	bufferSize int
	logger     *slog.Logger
}

func NewDeliveryService(reg registry.Registrar, groups pubsub.GroupJoiner, bufferSize int, logger *slog.Logger) *DeliveryService {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryService{
		registry:   reg,
		groups:     groups,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
// Push connections are registered too, so the reaper covers both kinds.
func (s *DeliveryService) Subscribe(ctx context.Context, username string, kind model.ChannelKind) (registry.Connector, error) {
	name, ok := model.NormalizeUsername(username)
	if !ok {
		return nil, fmt.Errorf("subscribe %q: %w", username, model.ErrInvalidUsername)
	}

	conn := registry.NewConnector(ctx, name, kind, s.bufferSize)
	s.registry.Register(conn)

	if kind == model.ChannelPush {
		// the membership ends by itself once conn is closed
		if _, err := s.groups.Join(name, conn); err != nil {
			s.registry.UnregisterConn(conn)
			conn.Close()
			return nil, err
		}
	}

	s.logger.Debug("SESSION_OPENED",
		slog.String("conn_id", conn.GetID()),
		slog.String("username", name),
		slog.String("kind", kind.String()))
	return conn, nil
}

// [UNSUBSCRIBE] EXPLICIT DISCONNECT PATH
func (s *DeliveryService) Unsubscribe(conn registry.Connector) {
	s.registry.UnregisterConn(conn)
	conn.Close()
	s.logger.Debug("SESSION_CLOSED",
		slog.String("conn_id", conn.GetID()),
		slog.String("username", conn.GetUsername()),
		slog.Uint64("dropped", conn.Dropped()))
}

func (s *DeliveryService) Touch(connID string) {
	s.registry.Touch(connID)
}
