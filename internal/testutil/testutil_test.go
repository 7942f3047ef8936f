package testutil

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

func TestWaitFor(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		n.Store(1)
	}()
	WaitFor(t, time.Second, func() bool { return n.Load() == 1 })
}

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, t.TempDir(), "nested/config.yaml", "budget:\n  per_tick: 3\n")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "budget:\n  per_tick: 3\n" {
		t.Errorf("content = %q", data)
	}
}

func TestItemBuilders(t *testing.T) {
	it, runs := CountingItem("c", workitem.AlwaysSerial)
	workitem.Execute(it)
	if runs.Load() != 1 || it.Category != workitem.AlwaysSerial {
		t.Errorf("CountingItem runs=%d category=%v", runs.Load(), it.Category)
	}

	f, fruns := FailingItem("f", 2)
	for i, wantErr := range []bool{true, true, false} {
		res := workitem.Execute(f)
		if (res.Err != nil) != wantErr {
			t.Errorf("run %d err = %v, want error %v", i+1, res.Err, wantErr)
		}
		if wantErr && !errors.Is(res.Err, ErrInjected) {
			t.Errorf("run %d err = %v, want ErrInjected", i+1, res.Err)
		}
	}
	if fruns.Load() != 3 {
		t.Errorf("FailingItem runs = %d", fruns.Load())
	}

	p, _ := PanickingItem("p")
	if res := workitem.Execute(p); !res.Panicked {
		t.Error("first run should panic")
	}
	if res := workitem.Execute(p); !res.OK() {
		t.Errorf("second run err = %v", res.Err)
	}

	if !NewManualClock().Now().Equal(Epoch) {
		t.Error("NewManualClock should start at Epoch")
	}
}
