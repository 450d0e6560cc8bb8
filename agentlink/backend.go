package agentlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// CommandReply is the backend's answer to a natural-language command.
type CommandReply struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Backend is the HTTP command service that sits in front of the agent.
type Backend struct {
	baseURL string
	client  *http.Client
}

// NewBackend creates a backend client for baseURL. A nil client uses
// http.DefaultClient.
func NewBackend(baseURL string, client *http.Client) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Probe checks liveness with GET /. Any 2xx response is healthy.
func (b *Backend) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/", nil)
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return &TransportError{Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: "probe", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// AgentCommand posts a natural-language command to /agent/command.
func (b *Backend) AgentCommand(ctx context.Context, command string) (*CommandReply, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}

	body, ok, err := b.post(ctx, "/agent/command", map[string]string{"command": command})
	if err != nil {
		return nil, err
	}
	if !ok {
		return &CommandReply{Message: string(body)}, nil
	}

	var reply CommandReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &TransportError{Op: "agent command", Err: err}
	}
	return &reply, nil
}

// ExecuteCode posts code to /execute-code and returns the result field, or
// the whole body when the reply has none.
func (b *Backend) ExecuteCode(ctx context.Context, code string) (json.RawMessage, error) {
	body, ok, err := b.post(ctx, "/execute-code", map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	if !ok {
		text, _ := json.Marshal(string(body))
		return text, nil
	}

	if result := gjson.GetBytes(body, "result"); result.Exists() {
		return json.RawMessage(result.Raw), nil
	}
	return json.RawMessage(body), nil
}

// post sends a JSON body and returns the response body. ok is false when a
// 2xx body is not JSON. Non-2xx responses become errors carrying the
// backend's detail or raw text.
func (b *Backend) post(ctx context.Context, path string, payload any) (body []byte, ok bool, err error) {
	op := "POST " + path

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, &TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, false, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, false, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, &TransportError{Op: op, Err: err}
	}

	isJSON := gjson.ValidBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if isJSON {
			if d := gjson.GetBytes(body, "detail"); d.Exists() {
				detail = d.String()
			}
		}
		return nil, false, &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, detail)}
	}
	return body, isJSON, nil
}
