package engine

import (
	"errors"
	"log/slog"
	"sync"
)

// Event is a playback state change announced by the engine.
type Event int

const (
	// EventNowPlaying means the play head moved to a different item, or to
	// nothing at the end of the stream.
	EventNowPlaying Event = iota
	// EventBufferUnderrun means the device ran out of queued audio.
	EventBufferUnderrun
	// EventDeviceReopened means the device was reopened in a new format
	// after the stream format drifted.
	EventDeviceReopened
	// EventDeviceReopenError means reopening the device failed; playback
	// is stalled until the next successful reopen.
	EventDeviceReopenError
)

func (e Event) String() string {
	switch e {
	case EventNowPlaying:
		return "nowplaying"
	case EventBufferUnderrun:
		return "bufferunderrun"
	case EventDeviceReopened:
		return "devicereopened"
	case EventDeviceReopenError:
		return "devicereopenerror"
	default:
		return "unknown"
	}
}

// Event queue errors.
var (
	ErrNoEvent      = errors.New("no event pending")
	ErrQueueAborted = errors.New("event queue aborted")
)

const defaultEventCapacity = 64

// EventQueue is a bounded FIFO of engine events. Emit never blocks: when
// the queue is full the event is dropped, on the theory that a consumer
// this far behind has already lost the plot.
type EventQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	events  []Event
	cap     int
	aborted bool
}

// NewEventQueue creates an event queue with the given capacity; zero or
// negative means the default.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	q := &EventQueue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Emit appends an event without blocking. Events emitted after Abort or
// past capacity are dropped.
func (q *EventQueue) Emit(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.aborted {
		return
	}
	if len(q.events) >= q.cap {
		slog.Warn("event queue full, dropping event", "event", e.String(), "capacity", q.cap)
		return
	}
	q.events = append(q.events, e)
	q.cond.Signal()
}

// Get removes and returns the oldest event. With block set it waits until
// an event arrives or the queue is aborted; without it, an empty queue
// returns ErrNoEvent.
func (q *EventQueue) Get(block bool) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.aborted {
			return 0, ErrQueueAborted
		}
		if len(q.events) > 0 {
			e := q.events[0]
			q.events = q.events[1:]
			return e, nil
		}
		if !block {
			return 0, ErrNoEvent
		}
		q.cond.Wait()
	}
}

// Peek returns the oldest event without removing it, with the same
// blocking behavior as Get.
func (q *EventQueue) Peek(block bool) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.aborted {
			return 0, ErrQueueAborted
		}
		if len(q.events) > 0 {
			return q.events[0], nil
		}
		if !block {
			return 0, ErrNoEvent
		}
		q.cond.Wait()
	}
}

// Len reports the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Flush discards all pending events.
func (q *EventQueue) Flush() {
	q.mu.Lock()
	q.events = nil
	q.mu.Unlock()
}

// Abort wakes all blocked consumers and makes further Get and Peek calls
// fail with ErrQueueAborted.
func (q *EventQueue) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Reset empties the queue and clears the aborted state so a fresh session
// starts clean.
func (q *EventQueue) Reset() {
	q.mu.Lock()
	q.events = nil
	q.aborted = false
	q.mu.Unlock()
}
