package agentlink

import (
	"encoding/json"
	"sync"
	"time"
)

type reply struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	ch    chan reply
	timer *time.Timer
}

// pendingRequests tracks correlated requests awaiting a reply. Each id is
// settled exactly once: by a reply, its timeout, or rejection.
type pendingRequests struct {
	mu       sync.Mutex
	requests map[string]*pendingRequest
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{requests: make(map[string]*pendingRequest)}
}

// register adds id and arms its timeout. The returned channel receives
// exactly one reply.
func (p *pendingRequests) register(id string, timeout time.Duration) <-chan reply {
	req := &pendingRequest{ch: make(chan reply, 1)}

	p.mu.Lock()
	p.requests[id] = req
	req.timer = time.AfterFunc(timeout, func() {
		p.settle(id, reply{err: ErrRequestTimeout})
	})
	p.mu.Unlock()

	return req.ch
}

// settle delivers r to id. It reports false when id is unknown or already
// settled, in which case r is dropped.
func (p *pendingRequests) settle(id string, r reply) bool {
	p.mu.Lock()
	req, ok := p.requests[id]
	if ok {
		delete(p.requests, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	req.timer.Stop()
	req.ch <- r
	return true
}

// cancel forgets id without delivering anything.
func (p *pendingRequests) cancel(id string) {
	p.mu.Lock()
	req, ok := p.requests[id]
	if ok {
		delete(p.requests, id)
	}
	p.mu.Unlock()

	if ok {
		req.timer.Stop()
	}
}

// rejectAll settles every outstanding request with err.
func (p *pendingRequests) rejectAll(err error) int {
	p.mu.Lock()
	requests := p.requests
	p.requests = make(map[string]*pendingRequest)
	p.mu.Unlock()

	for _, req := range requests {
		req.timer.Stop()
		req.ch <- reply{err: err}
	}
	return len(requests)
}

func (p *pendingRequests) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
