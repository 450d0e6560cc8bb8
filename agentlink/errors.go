package agentlink

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("not connected to agent")
	ErrClosing             = errors.New("connection is closing")
	ErrDisconnected        = errors.New("disconnected by user")
	ErrConnectionLost      = errors.New("connection to agent lost")
	ErrConnectionExhausted = errors.New("reconnect attempts exhausted")
	ErrRequestTimeout      = errors.New("agent request timed out")
	ErrEmptyCode           = errors.New("code cannot be empty")
	ErrEmptyCommand        = errors.New("command cannot be empty")
)

// TransportError wraps a socket, decoding or HTTP failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
