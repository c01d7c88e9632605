package door

import (
	"sync"

	"github.com/sweeney/garage-door/internal/logic"
)

// EdgeQueue carries sensor edges from GPIO callbacks to the controller,
// preserving delivery order. Edges are never coalesced: which sensor fired
// is part of every decision.
type EdgeQueue struct {
	ch        chan logic.Sensor
	done      chan struct{}
	closeOnce sync.Once
}

// NewEdgeQueue creates a queue buffering up to size edges.
func NewEdgeQueue(size int) *EdgeQueue {
	if size <= 0 {
		size = 64
	}
	return &EdgeQueue{
		ch:   make(chan logic.Sensor, size),
		done: make(chan struct{}),
	}
}

// Post enqueues an edge. It blocks while the queue is full and returns
// immediately once the queue is closed. Its signature matches gpio.EdgeHandler.
func (q *EdgeQueue) Post(sensor logic.Sensor) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.ch <- sensor:
	case <-q.done:
	}
}

// Close stops accepting edges. Pending edges are discarded.
func (q *EdgeQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len returns the number of queued edges.
func (q *EdgeQueue) Len() int {
	return len(q.ch)
}
