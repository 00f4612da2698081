// Package handoff carries decoded payloads from the network goroutine to the
// dispatch goroutine.
package handoff

import "sync"

// Queue is an unbounded FIFO of payloads. The read loop pushes, the
// dispatcher drains; neither side ever blocks on the other.
type Queue struct {
	mu    sync.Mutex
	items []string
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends payloads in order.
func (q *Queue) Push(payloads ...string) {
	if len(payloads) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, payloads...)
	q.mu.Unlock()
}

// Drain removes and returns everything queued at the time of the call, oldest
// first. Returns nil when the queue is empty.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued payloads.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
