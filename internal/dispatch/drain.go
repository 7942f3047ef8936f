package dispatch

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// DrainReport summarizes one drain barrier.
type DrainReport struct {
	Tick         uint64
	Submitted    int
	CallerRuns   int
	Failed       int
	Retried      int
	RetryFailed  int
	Secondary    int
	PeakInFlight int
	// Waited is the time spent inside DrainTick.
	Waited time.Duration
	// Processing is the time from the tick's first submission until the
	// barrier released. Zero when nothing was submitted.
	Processing time.Duration
}

// DrainTick blocks until every item submitted this tick has completed,
// running failed items serially as they come in. While waiting it runs tasks
// from src (which may be nil) and otherwise backs off from the configured
// initial delay up to the maximum.
//
// DrainTick never abandons in-flight items. A cancelled ctx only stops it
// from pulling more secondary work.
func (e *Engine) DrainTick(ctx context.Context, src SecondarySource) DrainReport {
	start := time.Now()
	report := DrainReport{Tick: e.tick.Load()}

	backoff := e.cfg.InitialBackoff
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if ran, failed := e.runRetries(); ran > 0 {
			report.Retried += ran
			report.RetryFailed += failed
			backoff = e.cfg.InitialBackoff
			continue
		}
		if e.inFlight.Load() == 0 && !e.hasRetries() {
			break
		}

		if src != nil && ctx.Err() == nil {
			if task, ok := src.PollTask(); ok {
				e.runSecondary(task)
				report.Secondary++
				backoff = e.cfg.InitialBackoff
				continue
			}
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			timer.Reset(backoff)
		}
		select {
		case <-e.notify:
			backoff = e.cfg.InitialBackoff
		case <-timer.C:
			backoff = min(backoff*2, e.cfg.MaxBackoff)
		}
	}

	end := time.Now()
	report.Waited = end.Sub(start)
	report.Submitted = int(e.tickSubmitted.Load())
	report.CallerRuns = int(e.tickCallerRuns.Load())
	report.Failed = int(e.tickFailed.Load())
	report.PeakInFlight = int(e.peak.Load())
	if first := e.firstStart.Load(); first != 0 {
		report.Processing = end.Sub(time.Unix(0, first))
	}
	return report
}

func (e *Engine) hasRetries() bool {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	return len(e.retries) > 0
}

// runRetries re-runs every queued failure on the calling goroutine.
func (e *Engine) runRetries() (ran, failed int) {
	e.retryMu.Lock()
	batch := e.retries
	e.retries = nil
	e.retryMu.Unlock()

	for _, t := range batch {
		res := workitem.Execute(t.item)
		t.retried = true
		e.retried.Add(1)
		if res.Err != nil {
			failed++
			err := errors.NewExecutionError(t.item.ID, errors.ModeSerial, res.Err).
				WithKind(t.item.Kind).
				WithAttempt(2)
			e.logger.WithTick(t.tick).Error("serial re-run failed", "item_id", t.item.ID, "error", err.Error())
		}
		t.finish(res)
	}
	return len(batch), failed
}

func (e *Engine) runSecondary(task func()) {
	var c panics.Catcher
	c.Try(task)
	if r := c.Recovered(); r != nil {
		e.noisy.Warn("secondary task panicked", "panic", r.String())
	}
}
