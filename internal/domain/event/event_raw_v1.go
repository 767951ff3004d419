package event

import "encoding/json"

var _ Eventer = (*RawEvent)(nil)

// RawEvent carries an already encoded payload, as received from a bus.
type RawEvent struct {
	id         string
	username   string
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	data       []byte
}

func NewRawEvent(id, username string, kind EventKind, priority EventPriority, occurredAt int64, data []byte) *RawEvent {
	if id == "" {
		id = newID()
	}
	return &RawEvent{
		id:         id,
		username:   username,
		kind:       kind,
		priority:   priority,
		occurredAt: occurredAt,
		data:       data,
	}
}

func (e *RawEvent) GetID() string              { return e.id }
func (e *RawEvent) GetKind() EventKind         { return e.kind }
func (e *RawEvent) GetUsername() string        { return e.username }
func (e *RawEvent) GetPriority() EventPriority { return e.priority }
func (e *RawEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *RawEvent) GetPayload() any            { return json.RawMessage(e.data) }
func (e *RawEvent) Encode() ([]byte, error)    { return e.data, nil }
