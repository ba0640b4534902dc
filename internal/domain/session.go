package domain

import "time"

// ConnectionState is the connection dimension of a session's lifecycle.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

var connectionTransitions = map[ConnectionState][]ConnectionState{
	ConnectionStateNew:          {ConnectionStateConnecting},
	ConnectionStateConnecting:   {ConnectionStateConnected, ConnectionStateFailed},
	ConnectionStateConnected:    {ConnectionStateDisconnected, ConnectionStateClosed},
	ConnectionStateDisconnected: {ConnectionStateConnected, ConnectionStateClosed},
	ConnectionStateFailed:       {ConnectionStateClosed},
}

// CanTransition reports whether the transport is expected to move from ->
// to. Other moves are still applied but logged as unexpected.
func (from ConnectionState) CanTransition(to ConnectionState) bool {
	for _, s := range connectionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can occur.
func (s ConnectionState) Terminal() bool {
	return s == ConnectionStateClosed
}

// EventKind identifies which sub-state of the transport changed.
type EventKind int

const (
	ConnectionStateChanged EventKind = iota
	ICEStateChanged
	GatheringStateChanged
	SignalingStateChanged
)

func (k EventKind) String() string {
	switch k {
	case ConnectionStateChanged:
		return "connection"
	case ICEStateChanged:
		return "ice"
	case GatheringStateChanged:
		return "gathering"
	case SignalingStateChanged:
		return "signaling"
	default:
		return "unknown"
	}
}

// Event is a lifecycle state change emitted by a session.
type Event struct {
	SessionID string
	Kind      EventKind
	State     string
	At        time.Time
}
