package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/james226/scene-bridge/agentlink"
)

// Websocket is one browser viewer. It receives every broadcaster event
// and may send command and code messages for the agent.
type Websocket struct {
	Id          string
	messageChan chan []byte
	notify      <-chan struct{}
	client      *agentlink.Client
	bus         *agentlink.Broadcaster
	logger      *log.Logger
}

func NewWebsocket(id string, client *agentlink.Client, bus *agentlink.Broadcaster, logger *log.Logger) *Websocket {
	return &Websocket{
		Id:          id,
		messageChan: make(chan []byte, 64),
		client:      client,
		bus:         bus,
		logger:      logger,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type viewerConnected struct {
	Type     string               `json:"type"`
	ClientId string               `json:"clientId"`
	State    agentlink.StateEvent `json:"state"`
}

type viewerReply struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (c *Websocket) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		c.logger.Println(err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	c.notify = ctx.Done()

	subscription := c.bus.Subscribe(func(e agentlink.Event) {
		bytes, err := agentlink.MarshalEvent(e)
		if err != nil {
			c.logger.Printf("error encoding %s event: %v", e.EventType(), err)
			return
		}
		c.enqueue(bytes)
	})
	defer c.bus.Unsubscribe(subscription)

	go func() {
		defer cancel()
		for {
			_, p, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Println("Websocket read error", err)
				}
				return
			}
			c.handleMessage(ctx, p)
		}
	}()

	bytes, err := json.Marshal(viewerConnected{Type: "connected", ClientId: c.Id, State: c.bus.State()})
	if err != nil {
		panic(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, bytes); err != nil {
		c.logger.Println(err)
		return
	}

	c.MessageLoop(ws)

	c.logger.Printf("Closing viewer %s", c.Id)
}

func (c *Websocket) enqueue(bytes []byte) {
	select {
	case c.messageChan <- bytes:
	default:
		c.logger.Printf("Dropping message for slow viewer %s", c.Id)
	}
}

// handleMessage accepts the same command and code frames the agent does.
// Code carrying a requestId is executed and answered with code_executed.
func (c *Websocket) handleMessage(ctx context.Context, p []byte) {
	if !gjson.ValidBytes(p) {
		c.reply(viewerReply{Type: "error", Error: "invalid JSON"})
		return
	}

	switch typ := gjson.GetBytes(p, "type").String(); typ {
	case string(agentlink.OutboundCommand):
		var params map[string]any
		if raw := gjson.GetBytes(p, "payload.params"); raw.IsObject() {
			json.Unmarshal([]byte(raw.Raw), &params)
		}
		if !c.client.SendCommand(gjson.GetBytes(p, "payload.command").String(), params) {
			c.reply(viewerReply{Type: "error", Error: "command not sent"})
		}

	case string(agentlink.OutboundCode):
		code := gjson.GetBytes(p, "payload.code").String()
		requestID := gjson.GetBytes(p, "requestId").String()
		if requestID == "" {
			if !c.client.SendCode(code) {
				c.reply(viewerReply{Type: "error", Error: "code not sent"})
			}
			return
		}
		go func() {
			result, err := c.client.ExecuteCode(ctx, code)
			r := viewerReply{Type: "code_executed", RequestID: requestID, Result: result}
			if err != nil {
				r.Error = err.Error()
			}
			c.reply(r)
		}()

	default:
		c.reply(viewerReply{Type: "error", Error: "unsupported message type " + typ})
	}
}

func (c *Websocket) reply(r viewerReply) {
	bytes, err := json.Marshal(r)
	if err != nil {
		c.logger.Printf("error encoding reply: %v", err)
		return
	}
	c.enqueue(bytes)
}

func (c *Websocket) MessageLoop(ws *websocket.Conn) {
	for {
		select {
		case m := <-c.messageChan:
			err := ws.WriteMessage(websocket.TextMessage, m)
			if err != nil {
				c.logger.Println("Websocket write error", err)
				return
			}

		case <-c.notify:
			return
		}
	}
}
