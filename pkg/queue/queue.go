// Package queue provides the FIFO work queue drained by the enrichment worker.
package queue

import "sync"

// Job identifies one activity to enrich for one user.
type Job struct {
	UserID     string
	ActivityID string
}

type node[T any] struct {
	data T
	next *node[T]
}

// Queue is an unbounded FIFO. Mutation is mutex-serialized so concurrent
// poller completions can enqueue safely while a single worker drains it.
// There is no deduplication; the poller checks audit snapshots before
// enqueuing.
type Queue[T any] struct {
	mu     sync.Mutex
	head   *node[T]
	tail   *node[T]
	count  int
	wakeup chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{wakeup: make(chan struct{}, 1)}
}

// Add appends an item to the tail and signals any waiting consumer.
func (q *Queue[T]) Add(data T) {
	q.mu.Lock()
	n := &node[T]{data: data}
	if q.head == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.count++
	q.mu.Unlock()

	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// Next removes and returns the head item. The second return is false when
// the queue is empty; Next never blocks.
func (q *Queue[T]) Next() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}
	q.count--
	data := q.head.data
	q.head = q.head.next
	if q.head == nil {
		q.tail = nil
	}
	return data, true
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.head == nil {
		return zero, false
	}
	return q.head.data, true
}

// Size returns the number of items currently queued.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear discards all pending items without running them.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = nil
	q.tail = nil
	q.count = 0
}

// Wakeup returns a channel that receives a signal after each Add. The worker
// selects on it instead of polling an empty queue.
func (q *Queue[T]) Wakeup() <-chan struct{} {
	return q.wakeup
}
