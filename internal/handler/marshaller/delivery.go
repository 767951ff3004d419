// Package marshaller maps domain events to the JSON envelope shared by every
// live channel. Payload bytes come from Eventer.Encode, so an event delivered
// to many sessions is marshalled once.
package marshaller

import (
	"encoding/json"
	"fmt"

	"github.com/webitel/code-delivery-service/internal/domain/event"
)

// Envelope is the wire shape of a delivered event.
type Envelope struct {
	Event   string          `json:"event"`
	ID      string          `json:"id"`
	SentAt  int64           `json:"sent_at"`
	Payload json.RawMessage `json:"payload"`
}

// EventName maps an event kind to the name clients listen for.
func EventName(kind event.EventKind) string {
	switch kind {
	case event.CodeReceived:
		return "new_code"
	case event.Connected:
		return "connected"
	case event.Disconnected:
		return "disconnected"
	case event.Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

func NewEnvelope(ev event.Eventer) (Envelope, error) {
	data, err := ev.Encode()
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal event %s: %w", ev.GetID(), err)
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Envelope{
		Event:   EventName(ev.GetKind()),
		ID:      ev.GetID(),
		SentAt:  ev.GetOccurredAt(),
		Payload: data,
	}, nil
}
