// Implements Queue, the FIFO channel between pipeline stages.
// The work queue is bounded (its capacity is the only backpressure on the
// dispatcher); the results queue is unbounded so workers never wait on the collector.

package sampling

import (
	"context"
	"sync"
)

// Queue is a goroutine-safe FIFO. Capacity 0 means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	notEmpty chan struct{} // closed and replaced whenever an item is added
	notFull  chan struct{} // closed and replaced whenever an item is removed
}

// NewQueue creates a queue holding at most capacity items (0 = unbounded).
// Panics if capacity is negative.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		panic("NewQueue: capacity must be >= 0")
	}
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

// Put appends v, blocking while the queue is full. Returns ctx's error if ctx
// ends before space frees up; v is then not enqueued.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			close(q.notEmpty)
			q.notEmpty = make(chan struct{})
			q.mu.Unlock()
			return nil
		}
		wait := q.notFull
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get removes and returns the front item, blocking while the queue is empty.
// Returns ctx's error if ctx ends first.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			close(q.notFull)
			q.notFull = make(chan struct{})
			q.mu.Unlock()
			return v, nil
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity (0 = unbounded).
func (q *Queue[T]) Cap() int {
	return q.capacity
}
