package agentlink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSettleDeliversOnce(t *testing.T) {
	p := newPendingRequests()
	ch := p.register("a", time.Second)

	if !p.settle("a", reply{result: json.RawMessage(`1`)}) {
		t.Fatal("settle() returned false for a registered id")
	}
	if p.settle("a", reply{result: json.RawMessage(`2`)}) {
		t.Error("settle() accepted a second reply")
	}

	r := <-ch
	if string(r.result) != "1" || r.err != nil {
		t.Errorf("Unexpected reply %s, %v", r.result, r.err)
	}
	if p.count() != 0 {
		t.Errorf("Expected 0 pending, got %d", p.count())
	}
}

func TestSettleUnknownIsDropped(t *testing.T) {
	p := newPendingRequests()
	p.register("known", time.Second)

	if p.settle("other", reply{}) {
		t.Error("settle() returned true for an unknown id")
	}
	if p.count() != 1 {
		t.Errorf("Expected known request to stay pending, got %d", p.count())
	}
}

func TestRegisterTimesOut(t *testing.T) {
	p := newPendingRequests()
	ch := p.register("slow", 10*time.Millisecond)

	select {
	case r := <-ch:
		if !errors.Is(r.err, ErrRequestTimeout) {
			t.Errorf("Expected ErrRequestTimeout, got %v", r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("request never timed out")
	}

	if p.settle("slow", reply{}) {
		t.Error("late reply was accepted after timeout")
	}
}

func TestRejectAll(t *testing.T) {
	p := newPendingRequests()
	a := p.register("a", time.Second)
	b := p.register("b", time.Second)

	if n := p.rejectAll(ErrConnectionLost); n != 2 {
		t.Errorf("Expected 2 rejected, got %d", n)
	}
	for _, ch := range []<-chan reply{a, b} {
		if r := <-ch; !errors.Is(r.err, ErrConnectionLost) {
			t.Errorf("Expected ErrConnectionLost, got %v", r.err)
		}
	}
	if n := p.rejectAll(ErrConnectionLost); n != 0 {
		t.Errorf("Expected nothing left to reject, got %d", n)
	}
}

func TestCancel(t *testing.T) {
	p := newPendingRequests()
	p.register("a", 10*time.Millisecond)
	p.cancel("a")

	if p.count() != 0 {
		t.Errorf("Expected 0 pending, got %d", p.count())
	}
	time.Sleep(20 * time.Millisecond)
}
