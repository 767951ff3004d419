package model

const (
	DisconnectClosed   = "SESSION_CLOSED"
	DisconnectShutdown = "SHUTDOWN"
)

// DisconnectedPayload represents the notification sent before the server closes the stream.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}
