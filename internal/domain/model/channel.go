package model

// ChannelKind distinguishes the live-channel technology a connection uses.
type ChannelKind int8

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	ChannelStream ChannelKind = iota + 1 // SSE and long-poll
	ChannelPush                          // WebSocket groups
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelStream:
		return "stream"
	case ChannelPush:
		return "push"
	default:
		return "unknown"
	}
}
