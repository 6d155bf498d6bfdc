package hostloop

import "sync"

// fifo is a thread-safe FIFO queue of pending tasks. Pop returns false
// when the queue is empty rather than blocking; the loop blocks on its
// wake channel instead, so the queue itself never needs a condition
// variable.
type fifo struct {
	mu   sync.Mutex
	buf  []func()
	head int
}

// Push appends a task to the tail of the queue.
// This method is thread-safe.
func (q *fifo) Push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, fn)
}

// Pop removes and returns the oldest task.
// Returns the task and true if successful, nil and false if the queue
// is empty. This method is thread-safe.
func (q *fifo) Pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.buf) {
		return nil, false
	}
	fn := q.buf[q.head]
	q.buf[q.head] = nil // avoid memory leak
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return fn, true
}

// Len returns the number of queued tasks.
// This method is thread-safe.
func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}
