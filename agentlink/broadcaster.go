package agentlink

import (
	"log"
	"sort"
	"sync"
)

// Handler receives broadcaster events.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription uint64

// Broadcaster fans connection and scene events out to independent
// subscribers and remembers the last connection state.
type Broadcaster struct {
	mu       sync.RWMutex
	next     Subscription
	handlers map[Subscription]Handler
	state    StateEvent
	logger   *log.Logger
}

// NewBroadcaster creates a broadcaster. A nil logger uses log.Default().
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		handlers: make(map[Subscription]Handler),
		logger:   logger,
	}
}

// Subscribe registers h and returns the token needed to remove it.
func (b *Broadcaster) Subscribe(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.handlers[b.next] = h
	return b.next
}

// Unsubscribe removes a handler. It reports false for unknown tokens.
func (b *Broadcaster) Unsubscribe(s Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[s]; !ok {
		return false
	}
	delete(b.handlers, s)
	return true
}

// Subscribers returns the number of registered handlers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// State returns the most recently published connection state.
func (b *Broadcaster) State() StateEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Publish delivers e to every handler in registration order on the calling
// goroutine. A panicking handler is logged and the rest still run.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	if st, ok := e.(StateEvent); ok {
		b.state = st
	}
	subs := make([]Subscription, 0, len(b.handlers))
	for s := range b.handlers {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = b.handlers[s]
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Broadcaster) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("%s handler panicked: %v", e.EventType(), r)
		}
	}()
	h(e)
}
