package agentlink

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/james226/scene-bridge/viewport"
)

// OutboundType tags a message sent to the agent.
type OutboundType string

const (
	OutboundCommand OutboundType = "command"
	OutboundCode    OutboundType = "code"
)

// Outbound is the single message shape written to the agent socket.
type Outbound struct {
	Type      OutboundType `json:"type"`
	Payload   any          `json:"payload"`
	RequestID string       `json:"requestId,omitempty"`
}

// CommandPayload is the payload of an OutboundCommand message.
type CommandPayload struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// CodePayload is the payload of an OutboundCode message.
type CodePayload struct {
	Code string `json:"code"`
}

// NewCommandMessage builds a command message. Nil params are sent as {}.
func NewCommandMessage(command string, params map[string]any) Outbound {
	if params == nil {
		params = map[string]any{}
	}
	return Outbound{Type: OutboundCommand, Payload: CommandPayload{Command: command, Params: params}}
}

// NewCodeMessage builds a code execution message. requestID may be empty
// for fire-and-forget sends.
func NewCodeMessage(code, requestID string) Outbound {
	return Outbound{Type: OutboundCode, Payload: CodePayload{Code: code}, RequestID: requestID}
}

// Inbound is a decoded agent message. The concrete types are SceneMessage,
// ErrorMessage, StatusMessage, LogMessage, CodeExecutedMessage,
// ResultMessage and UnknownMessage.
type Inbound interface {
	MessageType() string
}

// SceneMessage carries a full scene snapshot.
type SceneMessage struct {
	Type     string            `json:"type"`
	Snapshot viewport.Snapshot `json:"snapshot"`
}

func (m SceneMessage) MessageType() string { return m.Type }

// ErrorMessage is an error reported by the agent.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (m ErrorMessage) MessageType() string { return "error" }

// StatusMessage is a status line from the agent.
type StatusMessage struct {
	Message string `json:"message"`
}

func (m StatusMessage) MessageType() string { return "status" }

// LogMessage is a log line forwarded by the agent.
type LogMessage struct {
	Content string `json:"content"`
}

func (m LogMessage) MessageType() string { return "log" }

// CodeExecutedMessage answers a correlated code execution request.
type CodeExecutedMessage struct {
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (m CodeExecutedMessage) MessageType() string { return "code_executed" }

// ResultMessage is an untyped {result} or {error} command response.
type ResultMessage struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (m ResultMessage) MessageType() string { return "result" }

// UnknownMessage is any well-formed message with an unrecognised type.
type UnknownMessage struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"raw"`
}

func (m UnknownMessage) MessageType() string { return "unknown" }

var errInvalidJSON = errors.New("payload is not valid JSON")

// DecodeInbound parses one socket frame.
func DecodeInbound(data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return nil, &TransportError{Op: "decode", Err: errInvalidJSON}
	}

	typ := gjson.GetBytes(data, "type").String()
	switch typ {
	case "scene_data", "scene_update":
		body := gjson.GetBytes(data, "data")
		if !body.Exists() {
			body = gjson.GetBytes(data, "content")
		}
		if !body.Exists() || !body.IsObject() {
			return nil, &TransportError{Op: "decode", Err: fmt.Errorf("%s message has no scene object", typ)}
		}
		var snapshot viewport.Snapshot
		if err := json.Unmarshal([]byte(body.Raw), &snapshot); err != nil {
			return nil, &TransportError{Op: "decode", Err: fmt.Errorf("%s: %w", typ, err)}
		}
		return SceneMessage{Type: typ, Snapshot: snapshot}, nil

	case "error":
		return ErrorMessage{Message: gjson.GetBytes(data, "message").String()}, nil

	case "status":
		return StatusMessage{Message: gjson.GetBytes(data, "message").String()}, nil

	case "log":
		return LogMessage{Content: gjson.GetBytes(data, "content").String()}, nil

	case "code_executed":
		msg := CodeExecutedMessage{
			RequestID: gjson.GetBytes(data, "requestId").String(),
			Error:     gjson.GetBytes(data, "error").String(),
		}
		if result := gjson.GetBytes(data, "result"); result.Exists() {
			msg.Result = json.RawMessage(result.Raw)
		}
		return msg, nil

	case "":
		result := gjson.GetBytes(data, "result")
		errField := gjson.GetBytes(data, "error")
		if result.Exists() || errField.Exists() {
			msg := ResultMessage{Error: errField.String()}
			if result.Exists() {
				msg.Result = json.RawMessage(result.Raw)
			}
			return msg, nil
		}
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return UnknownMessage{Type: typ, Raw: raw}, nil
}
