package midi

import (
	"sort"
	"sync"
)

// EventQueue collects events from control threads and hands them to the
// render loop sorted by sample offset. The render loop drains the queue
// once per block; producers may add concurrently.
type EventQueue struct {
	events []Event
	mu     sync.Mutex
	sorted bool
}

// NewEventQueue creates a queue with room for a typical block's events.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		events: make([]Event, 0, 128),
		sorted: true,
	}
}

// Add appends an event.
func (q *EventQueue) Add(event Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, event)
	q.sorted = false
}

// AddMultiple appends a batch of events.
func (q *EventQueue) AddMultiple(events []Event) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, events...)
	q.sorted = false
}

// Drain moves all pending events into dst in offset order and empties the
// queue. Returns the extended slice.
func (q *EventQueue) Drain(dst []Event) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.sorted {
		q.sortEvents()
	}
	dst = append(dst, q.events...)
	q.events = q.events[:0]
	q.sorted = true
	return dst
}

// Clear discards all pending events.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = q.events[:0]
	q.sorted = true
}

// Size returns the number of pending events.
func (q *EventQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *EventQueue) sortEvents() {
	sort.SliceStable(q.events, func(i, j int) bool {
		return q.events[i].SampleOffset() < q.events[j].SampleOffset()
	})
	q.sorted = true
}
