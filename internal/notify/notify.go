// Package notify delivers door events to outbound sinks without blocking the
// state machine. Each sink gets its own bounded queue and worker.
package notify

import (
	"log"
	"sync"

	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/metrics"
)

// DefaultQueueSize is the number of events a sink may fall behind by.
const DefaultQueueSize = 16

// Sink sends one event somewhere. It may block.
type Sink interface {
	Publish(event logic.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event logic.Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(event logic.Event) error { return f(event) }

// Queue is a door.Notifier that hands events to a Sink on a worker goroutine.
// Events are delivered in the order they were queued. When the queue is
// full the new event is dropped and logged.
type Queue struct {
	name    string
	sink    Sink
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	ch     chan logic.Event
	done   chan struct{}
}

// NewQueue starts a worker for sink. size <= 0 uses DefaultQueueSize.
func NewQueue(name string, sink Sink, size int, m *metrics.Metrics) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		name:    name,
		sink:    sink,
		metrics: m,
		ch:      make(chan logic.Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify implements door.Notifier. It never blocks.
func (q *Queue) Notify(event logic.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	select {
	case q.ch <- event:
	default:
		log.Printf("notify: %s: queue full, dropping %s event", q.name, event.Status)
		q.metrics.Dropped(q.name)
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for event := range q.ch {
		if err := q.sink.Publish(event); err != nil {
			log.Printf("notify: %s: %s event not delivered: %v", q.name, event.Status, err)
			q.metrics.Dropped(q.name)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

// Multi fans one event out to several notifiers.
type Multi []door.Notifier

// Notify implements door.Notifier.
func (m Multi) Notify(event logic.Event) {
	for _, n := range m {
		n.Notify(event)
	}
}
