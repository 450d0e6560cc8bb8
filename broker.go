package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/james226/scene-bridge/agentlink"
)

// clientNotice tells SSE clients about their own and their peers' sessions.
type clientNotice struct {
	Type     string               `json:"type"`
	ClientId string               `json:"clientId"`
	Clients  []string             `json:"clients,omitempty"`
	State    *agentlink.StateEvent `json:"state,omitempty"`
}

// Broker streams broadcaster events to server-sent event clients.
type Broker struct {
	Notifier chan []byte

	newClients     chan chan []byte
	closingClients chan chan []byte
	clients        map[chan []byte]ksuid.KSUID

	bus          *agentlink.Broadcaster
	subscription agentlink.Subscription
	logger       *log.Logger
	done         chan struct{}
	closeOnce    sync.Once
}

func NewBroker(bus *agentlink.Broadcaster, logger *log.Logger) (broker *Broker) {
	broker = &Broker{
		Notifier:       make(chan []byte, 64),
		newClients:     make(chan chan []byte),
		closingClients: make(chan chan []byte),
		clients:        make(map[chan []byte]ksuid.KSUID),
		bus:            bus,
		logger:         logger,
		done:           make(chan struct{}),
	}

	broker.subscription = bus.Subscribe(broker.handle)

	go broker.listen()

	return
}

// Close detaches the broker from the broadcaster and stops its loop.
func (broker *Broker) Close() {
	broker.closeOnce.Do(func() {
		broker.bus.Unsubscribe(broker.subscription)
		close(broker.done)
	})
}

func (broker *Broker) handle(e agentlink.Event) {
	bytes, err := agentlink.MarshalEvent(e)
	if err != nil {
		broker.logger.Printf("error encoding %s event: %v", e.EventType(), err)
		return
	}

	select {
	case broker.Notifier <- bytes:
	case <-broker.done:
	}
}

func (broker *Broker) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	flusher, ok := rw.(http.Flusher)

	if !ok {
		http.Error(rw, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")

	messageChan := make(chan []byte, 16)

	select {
	case broker.newClients <- messageChan:
	case <-broker.done:
		http.Error(rw, "Broker closed", http.StatusServiceUnavailable)
		return
	}

	defer func() {
		select {
		case broker.closingClients <- messageChan:
		case <-broker.done:
		}
	}()

	for {
		select {
		case m := <-messageChan:
			fmt.Fprintf(rw, "data: %s\n\n", m)
			flusher.Flush()

		case <-req.Context().Done():
			return
		case <-broker.done:
			return
		}
	}
}

// send never blocks the loop; a client that has fallen behind misses the
// message.
func (broker *Broker) send(client chan []byte, bytes []byte) {
	select {
	case client <- bytes:
	default:
		broker.logger.Printf("Dropping message for slow client %s", broker.clients[client])
	}
}

func (broker *Broker) listen() {
	for {
		select {
		case s := <-broker.newClients:
			clients := make([]string, 0, len(broker.clients))
			for _, id := range broker.clients {
				clients = append(clients, id.String())
			}

			clientId := ksuid.New()

			bytes, err := json.Marshal(clientNotice{Type: "client-connected", ClientId: clientId.String()})
			if err != nil {
				panic(err)
			}
			for clientMessageChan := range broker.clients {
				broker.send(clientMessageChan, bytes)
			}

			broker.clients[s] = clientId
			state := broker.bus.State()
			bytes, err = json.Marshal(clientNotice{Type: "connected", Clients: clients, ClientId: clientId.String(), State: &state})
			if err != nil {
				panic(err)
			}
			broker.send(s, bytes)
			broker.logger.Printf("Client added. %d registered clients", len(broker.clients))

		case s := <-broker.closingClients:
			clientId := broker.clients[s].String()
			delete(broker.clients, s)
			broker.logger.Printf("Removed client. %d registered clients", len(broker.clients))

			bytes, err := json.Marshal(clientNotice{Type: "client-disconnected", ClientId: clientId})
			if err != nil {
				panic(err)
			}
			for clientMessageChan := range broker.clients {
				broker.send(clientMessageChan, bytes)
			}

		case bytes := <-broker.Notifier:
			for clientMessageChan := range broker.clients {
				broker.send(clientMessageChan, bytes)
			}

		case <-broker.done:
			return
		}
	}
}
