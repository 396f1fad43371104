package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter provides a thread-safe way to publish trace events to
// subscribers without blocking the run loop.
type EventEmitter struct {
	events       chan TraceEvent
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan TraceEvent, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full, it
// retries with a short timeout before dropping the event.
func (e *EventEmitter) Emit(event TraceEvent) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *EventEmitter) Events() <-chan TraceEvent {
	return e.events
}

// Close closes the events channel. Call once the run is finished.
func (e *EventEmitter) Close() {
	close(e.events)
}
