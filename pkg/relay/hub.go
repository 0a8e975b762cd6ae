package relay

import (
	"log/slog"
	"sync"
)

const DefaultQueueSize = 64

// Subscriber is one connected display. Frames queued for it are written by
// its own goroutine so a slow display never holds up a broadcast.
type Subscriber struct {
	send chan []byte
	once sync.Once
}

// Frames is closed when the hub drops the subscriber.
func (s *Subscriber) Frames() <-chan []byte {
	return s.send
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

type Hub struct {
	queueSize int

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{queueSize: queueSize, subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber with initial already queued. Callers hold
// the board lock while building initial so no broadcast can fall between the
// snapshot and the subscription.
func (h *Hub) Subscribe(initial ...[]byte) *Subscriber {
	size := h.queueSize
	if len(initial) > size {
		size = len(initial)
	}
	s := &Subscriber{send: make(chan []byte, size)}
	for _, frame := range initial {
		s.send <- frame
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	slog.Info("subscriber joined", "subscribers", n)
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		s.close()
		slog.Info("subscriber left", "subscribers", n)
	}
}

// Broadcast queues frame for every subscriber. A subscriber whose queue is
// full is dropped; its display resyncs when it reconnects.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !h.enqueueLocked(s, frame) {
			slog.Warn("subscriber too slow, dropping")
		}
	}
}

// Send queues frames for a single subscriber.
func (h *Hub) Send(s *Subscriber, frames ...[]byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return false
	}
	for _, frame := range frames {
		if !h.enqueueLocked(s, frame) {
			slog.Warn("subscriber too slow, dropping")
			return false
		}
	}
	return true
}

func (h *Hub) enqueueLocked(s *Subscriber, frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		delete(h.subs, s)
		s.close()
		return false
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		s.close()
	}
}
