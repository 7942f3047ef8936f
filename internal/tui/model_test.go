package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/ticksched/internal/dispatch"
	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/scaling"
	"github.com/Iron-Ham/ticksched/internal/scheduler"
)

type fakeSource struct {
	stats   scheduler.Stats
	polls   int
	resized []int
}

func (f *fakeSource) Stats() scheduler.Stats {
	f.polls++
	return f.stats
}

func (f *fakeSource) Resize(n int) int {
	n = max(n, 2)
	f.resized = append(f.resized, n)
	f.stats.Workers = n
	return n
}

func newFake() *fakeSource {
	return &fakeSource{stats: scheduler.Stats{
		Tick:     42,
		Workers:  4,
		Dispatch: dispatch.Totals{Parallel: 900, CallerRuns: 12, Failed: 3, Retried: 3},
		Serial:   100,
		Demoted:  2,
		Propagation: propagation.Stats{
			Received: 500,
			Dropped:  40,
			Ready:    map[propagation.Tier]int{propagation.High: 2},
		},
		BudgetPerTick:    10,
		DeferredRequests: 5,
		MSPT:             12 * time.Millisecond,
		TPS:              20,
		AverageTPS:       19.5,
		BatchSize:        64,
		Recommendation: scaling.Recommendation{
			ThreadDelta: 1,
			Reason:      "queue depth high",
		},
	}}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_View(t *testing.T) {
	m := NewModel(newFake(), 0, 50*time.Millisecond)
	view := m.View()

	for _, want := range []string{
		"tick 42",
		"Dispatch", "Propagation", "Budget", "Adaptive",
		"caller runs", "900",
		"received", "500",
		"high:2",
		"threads +1, batch +0",
		"queue depth high",
		"waiting for ticks",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_Refresh(t *testing.T) {
	src := newFake()
	m := NewModel(src, time.Second, 0)
	if m.Init() == nil {
		t.Fatal("Init() should schedule a refresh")
	}

	src.stats.Tick = 43
	next, cmd := m.Update(refreshMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Error("refresh should schedule the next refresh")
	}
	if m.stats.Tick != 43 {
		t.Errorf("stats.Tick = %d, want 43", m.stats.Tick)
	}

	m = update(t, m, key("p"))
	src.stats.Tick = 44
	m = update(t, m, refreshMsg(time.Now()))
	if m.stats.Tick != 43 {
		t.Errorf("paused dashboard refreshed to tick %d", m.stats.Tick)
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("View() should show paused status")
	}
}

func TestModel_ReportHistory(t *testing.T) {
	m := NewModel(newFake(), 0, 50*time.Millisecond)
	for i := 1; i <= historyLen+5; i++ {
		m = update(t, m, ReportMsg(scheduler.TickReport{Tick: uint64(i), Duration: time.Duration(i) * time.Millisecond}))
	}

	h := m.History()
	if len(h) != historyLen {
		t.Fatalf("len(History()) = %d, want %d", len(h), historyLen)
	}
	if h[0] != 6*time.Millisecond || h[len(h)-1] != time.Duration(historyLen+5)*time.Millisecond {
		t.Errorf("History() spans %v..%v", h[0], h[len(h)-1])
	}
	if m.last.Tick != historyLen+5 {
		t.Errorf("last tick = %d", m.last.Tick)
	}
	if strings.Contains(m.View(), "waiting for ticks") {
		t.Error("View() should plot ticks once reports arrive")
	}
}

func TestModel_Keys(t *testing.T) {
	tests := []struct {
		key      string
		quits    bool
		resized  []int
		showHelp bool
	}{
		{key: "q", quits: true},
		{key: "esc", quits: true},
		{key: "ctrl+c", quits: true},
		{key: "+", resized: []int{5}},
		{key: "-", resized: []int{3}},
		{key: "?", showHelp: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			src := newFake()
			m := NewModel(src, 0, 0)
			next, cmd := m.Update(key(tt.key))
			m = next.(Model)

			if tt.quits {
				if cmd == nil {
					t.Fatal("expected a quit command")
				}
				if _, ok := cmd().(tea.QuitMsg); !ok {
					t.Errorf("command returned %T, want tea.QuitMsg", cmd())
				}
			}
			if len(src.resized) != len(tt.resized) || (len(tt.resized) > 0 && src.resized[0] != tt.resized[0]) {
				t.Errorf("resized = %v, want %v", src.resized, tt.resized)
			}
			if m.showHelp != tt.showHelp {
				t.Errorf("showHelp = %v, want %v", m.showHelp, tt.showHelp)
			}
		})
	}
}

func TestModel_Done(t *testing.T) {
	m := NewModel(newFake(), 0, 0)
	m = update(t, m, DoneMsg{})
	if !strings.Contains(m.View(), "finished") {
		t.Error("View() should report a finished run")
	}

	m = update(t, m, DoneMsg{Err: errors.New("context canceled")})
	if !strings.Contains(m.View(), "stopped: context canceled") {
		t.Error("View() should report why the run stopped")
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name    string
		ds      []time.Duration
		ceiling time.Duration
		want    string
	}{
		{"zeros", []time.Duration{0, 0}, 0, "▁▁"},
		{"scaled to ceiling", []time.Duration{0, 50 * time.Millisecond}, 50 * time.Millisecond, "▁█"},
		{"scaled to max", []time.Duration{10, 20, 40}, 0, "▂▄█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripANSI(sparkline(tt.ds, tt.ceiling))
			if got != tt.want {
				t.Errorf("sparkline() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.50s"},
		{12500 * time.Microsecond, "12.5ms"},
		{750 * time.Microsecond, "750µs"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate() = %q, want %q", got, "abcd…")
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
