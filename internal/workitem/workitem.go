// Package workitem defines the unit of work the scheduler routes between the
// tick goroutine and the worker pool, and the panic-safe wrapper every
// execution path goes through.
package workitem

import (
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/ticksched/internal/errors"
)

// Category is an item's static safety classification.
type Category int

const (
	// ParallelEligible items may run on the worker pool.
	ParallelEligible Category = iota
	// ConditionallySerial items run in parallel unless a dynamic rule, such
	// as an in-progress transition, says otherwise.
	ConditionallySerial
	// AlwaysSerial items touch state that is only safe on the tick goroutine.
	AlwaysSerial
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case ParallelEligible:
		return "parallel_eligible"
	case ConditionallySerial:
		return "conditionally_serial"
	case AlwaysSerial:
		return "always_serial"
	default:
		return "unknown"
	}
}

// Item is an opaque unit of per-tick work. ID identifies the simulated
// object across ticks; demotions and transition counters are keyed by it.
type Item struct {
	ID       string
	Kind     string
	Category Category
	Run      func() error
	// InTransition reports whether the object is currently crossing a
	// boundary (for example between worlds). Nil means never.
	InTransition func() bool
}

// Validate reports ErrNilWork for an item without a closure.
func (it Item) Validate() error {
	if it.Run == nil {
		return errors.Wrapf(errors.ErrNilWork, "item %q", it.ID)
	}
	return nil
}

// Result is the outcome of one execution.
type Result struct {
	Err      error
	Panicked bool
	Duration time.Duration
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Execute runs the item's closure, turning a panic into a *errors.PanicError.
func Execute(it Item) Result {
	if it.Run == nil {
		return Result{Err: errors.ErrNilWork}
	}

	start := time.Now()
	var res Result
	var c panics.Catcher
	c.Try(func() { res.Err = it.Run() })
	res.Duration = time.Since(start)

	if r := c.Recovered(); r != nil {
		res.Err = errors.NewPanicError(r.Value, string(r.Stack))
		res.Panicked = true
	}
	return res
}
