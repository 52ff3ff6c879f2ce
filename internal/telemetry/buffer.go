//
//
package telemetry

import "sync"

// EventBuffer is a fixed-capacity ring of the most recent events.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	start    int
	size     int
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// AddEvent appends event, evicting the oldest one when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.events[(b.start+b.size)%b.capacity] = event
		b.size++
		return
	}
	b.events[b.start] = event
	b.start = (b.start + 1) % b.capacity
}

// GetEventsAfter returns buffered events with an id greater than lastID, oldest first.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for i := 0; i < b.size; i++ {
		e := b.events[(b.start+i)%b.capacity]
		if e.ID > lastID {
			result = append(result, e)
		}
	}
	return result
}

// Capacity returns the buffer capacity.
func (b *EventBuffer) Capacity() int {
	return b.capacity
}

// Size returns the number of buffered events.
func (b *EventBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
