package event

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/webitel/code-delivery-service/internal/domain/model"
)

var _ Eventer = (*CodeEvent)(nil)

// CodeEvent carries one ingested code to every live session of the target user.
//
// [TRANSIENT] Built per ingestion call and never persisted.
type CodeEvent struct {
	ID         string
	Username   string // normalized target username
	Source     string
	ReceivedAt time.Time
	Payload    any

	encodeOnce sync.Once
	encoded    []byte
	encodeErr  error
}

// NewCodeEvent wraps an arbitrary payload addressed to a normalized username.
func NewCodeEvent(username, source string, payload any) *CodeEvent {
	return &CodeEvent{
		ID:         newID(),
		Username:   username,
		Source:     source,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
}

// NewCodeEventFromPayload builds the event for a typed code payload.
func NewCodeEventFromPayload(p *model.CodePayload) *CodeEvent {
	ev := NewCodeEvent(p.Username, p.Source, p)
	if p.Timestamp == 0 {
		p.Timestamp = ev.ReceivedAt.Unix()
	}
	return ev
}

func (e *CodeEvent) GetID() string              { return e.ID }
func (e *CodeEvent) GetKind() EventKind         { return CodeReceived }
func (e *CodeEvent) GetUsername() string        { return e.Username }
func (e *CodeEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *CodeEvent) GetOccurredAt() int64       { return e.ReceivedAt.UnixMilli() }
func (e *CodeEvent) GetPayload() any            { return e.Payload }

// Encode marshals the payload exactly once per event, however many sessions receive it.
func (e *CodeEvent) Encode() ([]byte, error) {
	e.encodeOnce.Do(func() {
		e.encoded, e.encodeErr = json.Marshal(e.Payload)
	})
	return e.encoded, e.encodeErr
}
