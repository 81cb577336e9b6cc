package queue

import (
	"sync"

	"github.com/bzz-bot/bzz/internal/models"
)

// Queue is an unbounded FIFO of triggers awaiting execution.
// The reader cadence pushes, the actor cadence peeks and pops; the idle
// handler may also push while the actor owns the cycle.
type Queue struct {
	mu    sync.Mutex
	items []models.Trigger
}

// New creates an empty queue
func New() *Queue {
	return &Queue{items: make([]models.Trigger, 0, 16)}
}

// Push appends a trigger at the tail
func (q *Queue) Push(t models.Trigger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
}

// Peek returns the head without removing it
func (q *Queue) Peek() (models.Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.Trigger{}, false
	}
	return q.items[0], true
}

// Pop removes and returns the head
func (q *Queue) Pop() (models.Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.Trigger{}, false
	}

	head := q.items[0]
	q.items[0] = models.Trigger{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return head, true
}

// Len returns the number of pending triggers
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending triggers in order
func (q *Queue) Snapshot() []models.Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Trigger, len(q.items))
	copy(out, q.items)
	return out
}
