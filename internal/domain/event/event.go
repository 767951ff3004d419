package event

import "github.com/google/uuid"

type EventKind int16

//go:generate stringer -type=EventKind
const (
	Connected    EventKind = iota + 1 // [SYSTEM]
	Disconnected                      // [SYSTEM]
	Heartbeat                         // [SYSTEM]
	CodeReceived                      // [BUSINESS]
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Heartbeat:
		return "heartbeat"
	case CodeReceived:
		return "code"
	default:
		return "unknown"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the registry.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUsername() string
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	// Encode returns the JSON wire form. Implementations marshal once and
	// reuse the bytes for every subscriber of the same event.
	Encode() ([]byte, error)
}

func newID() string { return uuid.NewString() }
