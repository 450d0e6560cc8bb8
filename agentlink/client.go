package agentlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	DefaultAgentURL             = "ws://localhost:9876"
	DefaultReconnectDelay       = 3000 * time.Millisecond
	DefaultMaxReconnectAttempts = 5
	DefaultRequestTimeout       = 5000 * time.Millisecond
	DefaultConnectTimeout       = 10 * time.Second
)

// DialFunc opens a socket to the agent.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Options configures a Client. Zero fields take the Default values.
type Options struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RequestTimeout       time.Duration
	ConnectTimeout       time.Duration

	// Backend serves ExecuteCode and AgentCommand over HTTP. Without one,
	// ExecuteCode always uses the socket.
	Backend *Backend
	Dial    DialFunc
	Logger  *log.Logger
}

func (o *Options) setDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Dial == nil {
		o.Dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// attempt is one in-flight connect that concurrent callers wait on.
type attempt struct {
	done chan struct{}
	err  error
}

// Client owns the single session with the agent process: one socket, the
// reconnect policy and the correlated request table.
type Client struct {
	opts   Options
	bus    *Broadcaster
	logger *log.Logger

	mu       sync.Mutex
	state    State
	url      string
	conn     *websocket.Conn
	gen      uint64
	attempts int
	inflight *attempt
	timer    *time.Timer

	writeMu  sync.Mutex
	pending  *pendingRequests
	fallback atomic.Bool
}

// NewClient creates a disconnected client that publishes to bus.
func NewClient(bus *Broadcaster, opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:    opts,
		bus:     bus,
		logger:  opts.Logger,
		pending: newPendingRequests(),
	}
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a socket is open.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// ReconnectAttempts returns the attempts made since the last successful
// open.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// FallbackMode reports whether the last probe found the HTTP backend down.
func (c *Client) FallbackMode() bool {
	return c.fallback.Load()
}

// Connect opens the session. It returns nil at once when already
// connected and joins an in-flight attempt instead of opening a second
// socket.
func (c *Client) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		c.logger.Printf("already connected to %s", c.url)
		return nil
	case Connecting:
		a := c.inflight
		c.mu.Unlock()
		return a.wait(ctx)
	case Closing:
		c.mu.Unlock()
		return ErrClosing
	}

	if url != "" {
		c.url = url
	}
	if c.url == "" {
		c.url = DefaultAgentURL
	}
	c.stopTimerLocked()
	a, gen, target := c.beginLocked()
	c.mu.Unlock()

	c.publishState(Connecting, 0)
	go c.dial(gen, target, a)
	return a.wait(ctx)
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginLocked moves to Connecting under a fresh generation.
func (c *Client) beginLocked() (*attempt, uint64, string) {
	c.gen++
	c.state = Connecting
	c.inflight = &attempt{done: make(chan struct{})}
	return c.inflight, c.gen, c.url
}

func (c *Client) dial(gen uint64, url string, a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.opts.Dial(ctx, url)

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran while dialing.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		a.finish(ErrDisconnected)
		return
	}
	c.inflight = nil

	if err != nil {
		c.state = Disconnected
		exhausted := c.scheduleReconnectLocked(gen)
		attempts := c.attempts
		c.mu.Unlock()

		terr := &TransportError{Op: "dial " + url, Err: err}
		c.logger.Printf("agent connection failed: %v", err)
		c.bus.Publish(ErrorEvent{Err: terr})
		c.publishState(Disconnected, websocket.CloseAbnormalClosure)
		if exhausted {
			c.bus.Publish(ExhaustedEvent{Attempts: attempts})
			a.finish(errors.Join(terr, ErrConnectionExhausted))
			return
		}
		a.finish(terr)
		return
	}

	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Printf("connected to agent at %s", url)
	c.publishState(Connected, 0)
	go c.readLoop(gen, conn)
	a.finish(nil)
}

func (a *attempt) finish(err error) {
	a.err = err
	close(a.done)
}

// scheduleReconnectLocked arms the next reconnect. It reports true when
// the ceiling has been reached and nothing was scheduled.
func (c *Client) scheduleReconnectLocked(gen uint64) bool {
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.logger.Printf("maximum reconnection attempts reached (%d)", c.attempts)
		return true
	}
	c.attempts++
	c.logger.Printf("attempting to reconnect (%d/%d) in %s", c.attempts, c.opts.MaxReconnectAttempts, c.opts.ReconnectDelay)
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, func() { c.reconnect(gen) })
	return false
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	a, next, url := c.beginLocked()
	c.mu.Unlock()

	c.publishState(Connecting, 0)
	c.dial(next, url, a)
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.handleClose(gen, closeCode(err), err)
			return
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			c.logger.Printf("error parsing agent message: %v", err)
			c.bus.Publish(ErrorEvent{Err: err})
			continue
		}
		c.dispatch(msg)
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func normalClosure(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}

func (c *Client) dispatch(msg Inbound) {
	c.bus.Publish(MessageEvent{Message: msg})

	switch m := msg.(type) {
	case SceneMessage:
		c.bus.Publish(SceneEvent{Snapshot: m.Snapshot})
	case CodeExecutedMessage:
		if m.RequestID == "" {
			return
		}
		r := reply{result: m.Result}
		if m.Error != "" {
			r.err = fmt.Errorf("agent: %s", m.Error)
		}
		if !c.pending.settle(m.RequestID, r) {
			c.logger.Printf("dropping reply for unknown request %s", m.RequestID)
		}
	case ErrorMessage:
		c.logger.Printf("agent error: %s", m.Message)
	case LogMessage:
		c.logger.Printf("agent log: %s", m.Content)
	}
}

func (c *Client) handleClose(gen uint64, code int, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected

	exhausted := false
	if !normalClosure(code) {
		exhausted = c.scheduleReconnectLocked(gen)
	}
	attempts := c.attempts
	c.mu.Unlock()

	c.logger.Printf("disconnected from agent: code %d (%v)", code, cause)
	if n := c.pending.rejectAll(ErrConnectionLost); n > 0 {
		c.logger.Printf("rejected %d pending requests", n)
	}
	c.publishState(Disconnected, code)
	if exhausted {
		c.bus.Publish(ExhaustedEvent{Attempts: attempts})
	}
}

// Disconnect closes the session with a normal closure, cancels any
// scheduled reconnect and rejects pending requests. It does not reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	// An in-flight dial sees the new generation and fails its waiters.
	c.inflight = nil
	wasDisconnected := c.state == Disconnected && conn == nil
	if conn != nil {
		c.state = Closing
		c.mu.Unlock()

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by user")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()

		c.mu.Lock()
	}
	c.state = Disconnected
	c.mu.Unlock()

	c.pending.rejectAll(ErrDisconnected)
	if !wasDisconnected {
		c.logger.Printf("disconnected from agent by user")
		c.publishState(Disconnected, websocket.CloseNormalClosure)
	}
}

func (c *Client) publishState(state State, code int) {
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	c.bus.Publish(StateEvent{State: state, Attempts: attempts, CloseCode: code})
}

// send writes one message. It never queues and reports false when the
// socket is not open or the write fails.
func (c *Client) send(msg Outbound) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Printf("cannot send %s: %v", msg.Type, ErrNotConnected)
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Printf("error encoding %s: %v", msg.Type, err)
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		terr := &TransportError{Op: "write", Err: err}
		c.logger.Printf("error sending %s: %v", msg.Type, err)
		c.bus.Publish(ErrorEvent{Err: terr})
		return false
	}
	return true
}

// SendCommand sends an agent command without waiting for a reply.
func (c *Client) SendCommand(command string, params map[string]any) bool {
	if command == "" {
		return false
	}
	return c.send(NewCommandMessage(command, params))
}

// SendCode sends code for execution without waiting for a reply.
func (c *Client) SendCode(code string) bool {
	if code == "" {
		return false
	}
	return c.send(NewCodeMessage(code, ""))
}

// IntrospectScene asks the agent to report its scene.
func (c *Client) IntrospectScene() bool {
	return c.SendCommand("introspect_scene", nil)
}

// DescribeFunction asks the agent to document a scripting API function.
func (c *Client) DescribeFunction(path string) bool {
	if path == "" {
		return false
	}
	return c.SendCommand("describe_function", map[string]any{"function_path": path})
}

// AgentCommand forwards a natural-language command to the HTTP backend.
func (c *Client) AgentCommand(ctx context.Context, command string) (*CommandReply, error) {
	if c.opts.Backend == nil {
		return nil, &TransportError{Op: "agent command", Err: errors.New("no HTTP backend configured")}
	}
	reply, err := c.opts.Backend.AgentCommand(ctx, command)
	if err != nil {
		c.bus.Publish(ErrorEvent{Err: err})
		return nil, err
	}
	return reply, nil
}

// ExecuteCode runs code in the authoring application. The HTTP backend is
// probed on every call; when it is down the request goes over the socket
// and is matched to its reply by correlation id.
func (c *Client) ExecuteCode(ctx context.Context, code string) (json.RawMessage, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if !c.Connected() {
		return nil, ErrNotConnected
	}

	if c.probe(ctx) {
		result, err := c.opts.Backend.ExecuteCode(ctx, code)
		if err != nil {
			c.bus.Publish(ErrorEvent{Err: err})
			return nil, err
		}
		return result, nil
	}
	return c.executeOverSocket(ctx, code)
}

// probe refreshes the fallback flag and reports whether HTTP is usable.
func (c *Client) probe(ctx context.Context) bool {
	if c.opts.Backend == nil {
		c.fallback.Store(true)
		return false
	}
	if err := c.opts.Backend.Probe(ctx); err != nil {
		if !c.fallback.Swap(true) {
			c.logger.Printf("backend unavailable, using direct socket: %v", err)
		}
		return false
	}
	if c.fallback.Swap(false) {
		c.logger.Printf("backend connection restored")
	}
	return true
}

func (c *Client) executeOverSocket(ctx context.Context, code string) (json.RawMessage, error) {
	id := ksuid.New().String()
	replies := c.pending.register(id, c.opts.RequestTimeout)

	if !c.send(NewCodeMessage(code, id)) {
		c.pending.cancel(id)
		return nil, ErrNotConnected
	}

	select {
	case r := <-replies:
		return r.result, r.err
	case <-ctx.Done():
		c.pending.cancel(id)
		return nil, ctx.Err()
	}
}

// Pending returns the number of correlated requests awaiting replies.
func (c *Client) Pending() int {
	return c.pending.count()
}
