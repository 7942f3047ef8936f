package scheduler

import (
	"github.com/Iron-Ham/ticksched/internal/budget"
	"github.com/Iron-Ham/ticksched/internal/classify"
	"github.com/Iron-Ham/ticksched/internal/clock"
	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// State is the scheduler's session state. Each collaborator is safe for
// concurrent use on its own.
type State struct {
	Registry    *classify.Registry
	Transitions *classify.Transitions
	Gauge       *classify.LoadGauge
	Debouncer   *propagation.Debouncer
	Ledger      *budget.Ledger[workitem.Item]
}

// NewState creates empty state sized from cfg.
func NewState(cfg Config, c clock.Clock) *State {
	return &State{
		Registry:    classify.NewRegistry(c),
		Transitions: classify.NewTransitions(cfg.Classifier.TransitionTicks),
		Gauge:       &classify.LoadGauge{},
		Debouncer:   propagation.NewDebouncer(cfg.Propagation.MaxUpdatesPerSecond, cfg.Propagation.StableThreshold),
		Ledger:      budget.NewLedger[workitem.Item](cfg.BudgetPerTick),
	}
}

// Reset clears demotions, transition countdowns, the load gauge, debounce
// entries and deferred requests.
func (st *State) Reset() {
	st.Registry.Clear()
	st.Transitions.Clear()
	st.Gauge.Reset()
	st.Debouncer.Clear()
	st.Ledger.Clear()
}
