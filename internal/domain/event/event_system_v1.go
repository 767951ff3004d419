package event

import (
	"encoding/json"
	"sync"
	"time"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for service-generated signals.
type SystemEvent struct {
	id         string
	username   string
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any

	encodeOnce sync.Once
	encoded    []byte
	encodeErr  error
}

// [INTERFACE_IMPLEMENTATION]
func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUsername() string        { return e.username }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }

func (e *SystemEvent) Encode() ([]byte, error) {
	e.encodeOnce.Do(func() {
		e.encoded, e.encodeErr = json.Marshal(e.payload)
	})
	return e.encoded, e.encodeErr
}

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(username string, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         newID(),
		username:   username,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}
