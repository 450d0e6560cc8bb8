package agentlink

import (
	"encoding/json"

	"github.com/james226/scene-bridge/viewport"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is the interface that all broadcaster events implement
type Event interface {
	EventType() string
}

// StateEvent reports a connection state transition
type StateEvent struct {
	State     State `json:"state"`
	Attempts  int   `json:"attempts"`
	CloseCode int   `json:"closeCode,omitempty"`
}

func (e StateEvent) EventType() string { return "connection" }

// ExhaustedEvent reports that automatic reconnection has stopped
type ExhaustedEvent struct {
	Attempts int `json:"attempts"`
}

func (e ExhaustedEvent) EventType() string { return "connection_exhausted" }

// ErrorEvent reports a transport failure
type ErrorEvent struct {
	Err error `json:"-"`
}

func (e ErrorEvent) EventType() string { return "error" }

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Message string `json:"message"`
	}{msg})
}

// MessageEvent carries every decoded inbound message, in receive order
type MessageEvent struct {
	Message Inbound `json:"message"`
}

func (e MessageEvent) EventType() string { return "message" }

// SceneEvent carries a scene snapshot received from the agent
type SceneEvent struct {
	Snapshot viewport.Snapshot `json:"snapshot"`
}

func (e SceneEvent) EventType() string { return "scene" }

type envelope struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// MarshalEvent renders an event as {"type": ..., "data": ...} for UI
// surfaces.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(envelope{Type: e.EventType(), Data: e})
}
