package dispatch

import "sync"

// SecondarySource supplies low-priority work for the drain barrier to run
// while it waits. PollTask must not block.
type SecondarySource interface {
	PollTask() (task func(), ok bool)
}

// SecondaryFunc adapts a function to SecondarySource.
type SecondaryFunc func() (func(), bool)

// PollTask calls f.
func (f SecondaryFunc) PollTask() (func(), bool) { return f() }

// SecondaryQueue is a bounded FIFO SecondarySource that other goroutines can
// feed.
type SecondaryQueue struct {
	mu    sync.Mutex
	tasks []func()
	limit int
}

// NewSecondaryQueue creates a queue that holds at most limit tasks.
// A limit of 0 means unbounded.
func NewSecondaryQueue(limit int) *SecondaryQueue {
	return &SecondaryQueue{limit: limit}
}

// Offer appends task and reports false when the queue is full.
func (q *SecondaryQueue) Offer(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.tasks) >= q.limit {
		return false
	}
	q.tasks = append(q.tasks, task)
	return true
}

// PollTask removes and returns the oldest task.
func (q *SecondaryQueue) PollTask() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

// Len returns the number of queued tasks.
func (q *SecondaryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
