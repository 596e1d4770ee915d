package queue

import "sync"

// Queue is a generic FIFO queue safe for use by multiple goroutines.
// Consumers block on Wait until an item is available or the queue is closed.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

// New creates and returns a new Queue instance.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: []T{}, ready: make(chan struct{}, 1)}
}

// Enqueue adds an element to the end of the queue.
// It returns false if the queue has been closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return true
}

// Dequeue removes and returns the front element of the queue.
// The boolean indicates whether an element was dequeued (false if the queue was empty).
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Wait blocks until an element is dequeued, or returns false once the queue
// is closed and drained.
func (q *Queue[T]) Wait() (T, bool) {
	for {
		if item, ok := q.Dequeue(); ok {
			return item, true
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			// Close may have raced with a final Enqueue.
			return q.Dequeue()
		}

		<-q.ready
	}
}

// Close stops the queue from accepting new elements. Elements already queued
// are still handed out by Wait.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}
