package dispatch

import (
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// Task tracks one submitted item. Each task carries its own lifecycle state;
// nothing about it lives on the Engine.
type Task struct {
	item workitem.Item
	tick uint64
	mode errors.Mode
	done chan struct{}

	// Written before done is closed.
	result  workitem.Result
	failure *errors.ExecutionError
	retried bool
}

func newTask(item workitem.Item, tick uint64) *Task {
	return &Task{item: item, tick: tick, done: make(chan struct{})}
}

// Item returns the submitted item.
func (t *Task) Item() workitem.Item { return t.item }

// Done is closed once the task has a final result.
func (t *Task) Done() <-chan struct{} { return t.done }

// Mode reports how the first attempt ran (parallel or caller-runs).
func (t *Task) Mode() errors.Mode { return t.mode }

// Result returns the final result. It is only meaningful after Done is
// closed; for a retried task it is the serial re-run's result.
func (t *Task) Result() workitem.Result { return t.result }

// Retried reports whether the first attempt failed and the item was re-run
// serially.
func (t *Task) Retried() bool { return t.retried }

// Failure returns the first attempt's error, or nil.
func (t *Task) Failure() *errors.ExecutionError { return t.failure }

func (t *Task) finish(res workitem.Result) {
	t.result = res
	close(t.done)
}
