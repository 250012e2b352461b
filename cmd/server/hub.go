package main

import (
	"sync"

	mandel "github.com/marben/adaptive_mandel"
)

const subscriberBuffer = 64

// hub fans progress events out to websocket watchers. A watcher that falls
// a full buffer behind is dropped; it sees the current state on reconnect.
type hub struct {
	mu     sync.Mutex
	subs   map[chan mandel.Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan mandel.Event]struct{})}
}

// subscribe registers a watcher. The channel is closed when the watcher is
// dropped, cancelled or the hub closes.
func (h *hub) subscribe() (<-chan mandel.Event, func()) {
	ch := make(chan mandel.Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(ch)
	}
}

func (h *hub) remove(ch chan mandel.Event) {
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) publish(e mandel.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.remove(ch)
		}
	}
}

func (h *hub) watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		h.remove(ch)
	}
}
