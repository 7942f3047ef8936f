// Package testutil provides testing utilities for ticksched tests.
package testutil

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// Epoch is the start time of clocks created by NewManualClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManualClock returns a manual clock set to Epoch.
func NewManualClock() *clock.Manual {
	return clock.NewManual(Epoch)
}

// WaitFor polls cond every few milliseconds until it returns true, failing
// the test if timeout elapses first.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// WriteFile writes content to path under dir, creating parent directories,
// and returns the full path.
func WriteFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return fullPath
}

// ErrInjected is returned by items built with FailingItem.
var ErrInjected = errors.New("injected failure")

// CountingItem returns an item that counts its runs.
func CountingItem(id string, cat workitem.Category) (workitem.Item, *atomic.Int64) {
	var runs atomic.Int64
	return workitem.Item{
		ID:       id,
		Kind:     "test/counting",
		Category: cat,
		Run: func() error {
			runs.Add(1)
			return nil
		},
	}, &runs
}

// FailingItem returns a parallel-eligible item that returns ErrInjected from
// its first n runs and succeeds afterwards. The counter records every run.
func FailingItem(id string, n int64) (workitem.Item, *atomic.Int64) {
	var runs atomic.Int64
	return workitem.Item{
		ID:       id,
		Kind:     "test/failing",
		Category: workitem.ParallelEligible,
		Run: func() error {
			if runs.Add(1) <= n {
				return ErrInjected
			}
			return nil
		},
	}, &runs
}

// PanickingItem returns a parallel-eligible item that panics on its first
// run and succeeds afterwards.
func PanickingItem(id string) (workitem.Item, *atomic.Int64) {
	var runs atomic.Int64
	return workitem.Item{
		ID:       id,
		Kind:     "test/panicking",
		Category: workitem.ParallelEligible,
		Run: func() error {
			if runs.Add(1) == 1 {
				panic("boom")
			}
			return nil
		},
	}, &runs
}
