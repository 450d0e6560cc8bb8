package main

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tidwall/gjson"

	"github.com/james226/scene-bridge/agentlink"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func (p *fakePublisher) published() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.messages...)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelayPublishesEvents(t *testing.T) {
	publisher := &fakePublisher{}
	relay := NewRelay(publisher, "viewport", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	bus := agentlink.NewBroadcaster(quietLogger())
	bus.Subscribe(relay.Handle)
	bus.Publish(agentlink.StateEvent{State: agentlink.Connected})
	bus.Publish(agentlink.ExhaustedEvent{Attempts: 5})

	waitFor(t, "two messages", func() bool { return len(publisher.published()) == 2 })

	messages := publisher.published()
	if gjson.GetBytes(messages[0], "type").String() != "connection" ||
		gjson.GetBytes(messages[0], "data.state").String() != "connected" {
		t.Errorf("Unexpected first message %s", messages[0])
	}
	if gjson.GetBytes(messages[1], "type").String() != "connection_exhausted" {
		t.Errorf("Unexpected second message %s", messages[1])
	}
	for _, channel := range publisher.channels {
		if channel != "viewport" {
			t.Errorf("Expected channel viewport, got %s", channel)
		}
	}
}

func TestRelaySurvivesPublishErrors(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("redis down")}
	relay := NewRelay(publisher, "viewport", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	relay.Handle(agentlink.StateEvent{State: agentlink.Connecting})
	waitFor(t, "queue drained", func() bool { return len(relay.queue) == 0 })

	publisher.mu.Lock()
	publisher.err = nil
	publisher.mu.Unlock()

	relay.Handle(agentlink.StateEvent{State: agentlink.Connected})
	waitFor(t, "message after recovery", func() bool { return len(publisher.published()) == 1 })
}

func TestRelayDropsWhenQueueFull(t *testing.T) {
	relay := NewRelay(&fakePublisher{}, "viewport", quietLogger())

	for i := 0; i < cap(relay.queue)+10; i++ {
		relay.Handle(agentlink.ExhaustedEvent{Attempts: i})
	}
	if len(relay.queue) != cap(relay.queue) {
		t.Errorf("Expected a full queue, got %d/%d", len(relay.queue), cap(relay.queue))
	}
}
