// Package buffer provides the mutex-guarded FIFO queues shared between the
// request handler and the inference worker.
package buffer

import "sync"

// Queue is an ordered, growable FIFO guarded by a single mutex.
// Producers append at the tail; consumers peek and remove from the head.
// Every operation that both reads and removes happens under one lock, so a
// window read can never interleave with a concurrent head removal.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an item at the tail.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Head returns a copy of the first n items without removing them.
// ok is false if fewer than n items are queued.
func (q *Queue[T]) Head(n int) (items []T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) < n {
		return nil, false
	}

	out := make([]T, n)
	copy(out, q.items[:n])
	return out, true
}

// Tail returns a copy of the last n items in arrival order.
// If fewer than n items are queued, all of them are returned.
func (q *Queue[T]) Tail(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	copy(out, q.items[len(q.items)-n:])
	return out
}

// Drop removes up to n items from the head and returns how many were removed.
func (q *Queue[T]) Drop(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropLocked(n)
}

// TakeWindow returns a copy of the first size items and removes drop items
// from the head in the same critical section. ok is false, and nothing is
// removed, if fewer than size items are queued.
func (q *Queue[T]) TakeWindow(size, drop int) (window []T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if size <= 0 || len(q.items) < size {
		return nil, false
	}

	window = make([]T, size)
	copy(window, q.items[:size])
	q.dropLocked(drop)
	return window, true
}

// Clear removes every item. The queue itself stays usable.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	clear(q.items)
	q.items = q.items[:0]
	q.mu.Unlock()
}

func (q *Queue[T]) dropLocked(n int) int {
	if n <= 0 {
		return 0
	}
	if n > len(q.items) {
		n = len(q.items)
	}

	// Zero the removed slots so dropped frames can be collected.
	clear(q.items[:n])
	q.items = q.items[n:]
	return n
}
