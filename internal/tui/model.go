// Package tui is a terminal dashboard for a running scheduler. It polls
// Stats on a fixed interval and plots the duration of recent ticks.
package tui

import (
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/ticksched/internal/scheduler"
)

// historyLen is how many tick durations the sparkline keeps.
const historyLen = 60

// DefaultRefresh is the stats polling interval.
const DefaultRefresh = 250 * time.Millisecond

// Source is what the dashboard reads from and controls.
type Source interface {
	Stats() scheduler.Stats
	Resize(n int) int
}

// ReportMsg delivers a finished tick to the dashboard.
type ReportMsg scheduler.TickReport

// DoneMsg tells the dashboard the host stopped. The dashboard stays open
// until the user quits.
type DoneMsg struct{ Err error }

type refreshMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	src      Source
	interval time.Duration
	budget   time.Duration // tick interval MSPT is judged against

	stats   scheduler.Stats
	last    scheduler.TickReport
	history []time.Duration

	width, height int
	paused        bool
	showHelp      bool
	done          bool
	err           error
	status        string
}

// NewModel creates a dashboard over src for a host ticking every
// tickInterval. A non-positive refresh uses DefaultRefresh.
func NewModel(src Source, refresh, tickInterval time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{
		src:      src,
		interval: refresh,
		budget:   tickInterval,
		stats:    src.Stats(),
		history:  make([]time.Duration, 0, historyLen),
	}
}

// Init starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) refresh() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		if !m.paused {
			m.stats = m.src.Stats()
		}
		return m, m.refresh()

	case ReportMsg:
		if m.paused {
			return m, nil
		}
		m.last = scheduler.TickReport(msg)
		if len(m.history) == historyLen {
			copy(m.history, m.history[1:])
			m.history = m.history[:historyLen-1]
		}
		m.history = append(m.history, msg.Duration)
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.stats = m.src.Stats()
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
		if m.paused {
			m.status = "paused"
		} else {
			m.status = ""
		}
	case "?":
		m.showHelp = !m.showHelp
	case "+", "=":
		n := m.src.Resize(m.stats.Workers + 1)
		m.stats.Workers = n
		m.status = "workers → " + strconv.Itoa(n)
	case "-", "_":
		n := m.src.Resize(m.stats.Workers - 1)
		m.stats.Workers = n
		m.status = "workers → " + strconv.Itoa(n)
	}
	return m, nil
}

// History returns the recorded tick durations, oldest first.
func (m Model) History() []time.Duration {
	return append([]time.Duration(nil), m.history...)
}
