package engine

import (
	"sync"
)

// EventKind distinguishes between trigger kinds.
type EventKind int

const (
	// EventMessage is an inbound command from the foreground app.
	EventMessage EventKind = iota + 1
	// EventPush is an external push payload to display.
	EventPush
	// EventTimer is a delayed notification timer firing.
	EventTimer
	// EventSync is a periodic background-sync trigger.
	EventSync
	// EventHeartbeat renews the instance lease.
	EventHeartbeat
)

// String returns the kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPush:
		return "push"
	case EventTimer:
		return "timer"
	case EventSync:
		return "sync"
	case EventHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Event is a trigger waiting to be processed by the Run loop.
type Event struct {
	Kind EventKind

	// Payload is the raw message or push body.
	Payload []byte

	// ID is the scheduled record id (EventTimer).
	ID string

	// Tag is the sync registration tag (EventSync).
	Tag string

	// reply receives the outcome of EventMessage and EventPush. Buffered.
	reply chan Reply
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded: timer callbacks, cron jobs and HTTP handlers must
// never block while the Run loop is busy with a cycle.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the payload and reply channel held by the backing array.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
