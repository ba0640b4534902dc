package webrtc

import (
	"sync"

	"camclient/native/internal/domain"
)

// eventQueue is an unbounded FIFO between the transport callbacks and the
// session's dispatcher goroutine.
type eventQueue struct {
	mu     sync.Mutex
	items  []domain.Event
	closed bool
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

// push appends ev unless the queue is closed.
func (q *eventQueue) push(ev domain.Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() ([]domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items, q.closed
}

// run delivers events in order until the queue is closed and empty.
func (q *eventQueue) run(deliver func(domain.Event)) {
	for range q.notify {
		items, closed := q.drain()
		for _, ev := range items {
			deliver(ev)
		}
		if closed {
			return
		}
	}
}
