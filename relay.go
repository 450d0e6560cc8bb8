package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/james226/scene-bridge/agentlink"
)

// Publisher is the part of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Relay mirrors broadcaster events onto a redis channel so bridges on
// other hosts can follow the same agent session.
type Relay struct {
	publisher Publisher
	channel   string
	queue     chan []byte
	logger    *log.Logger
}

func NewRelay(publisher Publisher, channel string, logger *log.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		channel:   channel,
		queue:     make(chan []byte, 256),
		logger:    logger,
	}
}

// Handle queues an event for publishing. It is a broadcaster handler and
// must not block, so events are dropped while the queue is full.
func (r *Relay) Handle(e agentlink.Event) {
	bytes, err := agentlink.MarshalEvent(e)
	if err != nil {
		r.logger.Printf("error encoding %s event: %v", e.EventType(), err)
		return
	}

	select {
	case r.queue <- bytes:
	default:
		r.logger.Printf("relay queue full, dropping %s event", e.EventType())
	}
}

// Run publishes queued events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case bytes := <-r.queue:
			if err := r.publisher.Publish(ctx, r.channel, bytes).Err(); err != nil {
				r.logger.Printf("error publishing to %s: %v", r.channel, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RelayStream serves the redis channel as server-sent events.
type RelayStream struct {
	Id      string
	rdb     *redis.Client
	channel string
	logger  *log.Logger
}

func NewRelayStream(id string, rdb *redis.Client, channel string, logger *log.Logger) *RelayStream {
	return &RelayStream{
		Id:      id,
		rdb:     rdb,
		channel: channel,
		logger:  logger,
	}
}

func (c *RelayStream) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	flusher, ok := rw.(http.Flusher)

	if !ok {
		http.Error(rw, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	subscription := c.rdb.Subscribe(ctx, c.channel)

	defer subscription.Close()

	if _, err := subscription.Receive(ctx); err != nil {
		c.logger.Printf("error subscribing to %s: %v", c.channel, err)
		http.Error(rw, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}

	fmt.Fprintf(rw, "data: {\"type\":\"connected\",\"clientId\":\"%s\"}\n\n", c.Id)
	flusher.Flush()

	c.MessageLoop(ctx, rw, flusher, subscription.Channel())

	c.logger.Printf("Closing relay client %s", c.Id)
}

func (c *RelayStream) MessageLoop(ctx context.Context, rw http.ResponseWriter, flusher http.Flusher, messages <-chan *redis.Message) {
	for {
		select {
		case m, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(rw, "data: %s\n\n", m.Payload)
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}
