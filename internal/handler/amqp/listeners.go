package amqp

import (
	"context"
	"errors"

	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/service"
)

// IngestMessageV1 is the bus form of an ingest request.
type IngestMessageV1 struct {
	model.IngestRequest
}

func (m *IngestMessageV1) TargetUsername() string { return m.Username }

// [ON_CODE_INGESTED]
// Resolves the target and broadcasts to the sessions held by this node.
func (h *MessageHandler) OnCodeIngestedV1(ctx context.Context, raw *IngestMessageV1) error {
	res, err := h.ingester.Ingest(ctx, raw.IngestRequest)
	switch {
	case err == nil:
		h.logger.Debug("CODE_DELIVERED_FROM_BUS", "username", raw.Username, "delivered", res.Delivered)
		return nil
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, model.ErrUserNotFound):
		// ACK: retrying cannot fix the input
		h.logger.Warn("INGEST_MESSAGE_REJECTED", "username", raw.Username, "err", err)
		return nil
	default:
		return err // NACK: triggers the retry policy
	}
}
