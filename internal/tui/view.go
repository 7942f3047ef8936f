package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/tui/styles"
)

var sparkBars = []rune("▁▂▃▄▅▆▇█")

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderDispatch(),
		m.renderPropagation(),
		m.renderBudget(),
	)
	b.WriteString(panels)
	b.WriteString("\n")
	b.WriteString(m.renderTimeline())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(renderHelp())
	}
	return b.String()
}

func (m Model) renderHeader() string {
	s := m.stats
	limit := float64(m.budget)
	mspt := styles.Health(float64(s.MSPT), limit).Render(formatDuration(s.MSPT))
	return styles.Header.Render(fmt.Sprintf("ticksched  tick %d", s.Tick)) + "\n" +
		fmt.Sprintf("%s %s   %s %.1f (avg %.1f)   %s %.1f",
			styles.Muted.Render("mspt"), mspt,
			styles.Muted.Render("tps"), s.TPS, s.AverageTPS,
			styles.Muted.Render("missed"), s.MissedTotal,
		)
}

func row(label string, value any) string {
	return styles.Label.Render(label) + styles.Value.Render(fmt.Sprint(value))
}

func panel(title string, rows ...string) string {
	body := styles.PanelTitle.Render(title) + "\n" + strings.Join(rows, "\n")
	return styles.Panel.Render(body)
}

func (m Model) renderDispatch() string {
	s := m.stats
	d := s.Dispatch
	return panel("Dispatch",
		row("workers", s.Workers),
		row("in flight", s.InFlight),
		row("queue", s.QueueLen),
		row("serial", s.Serial),
		row("parallel", d.Parallel),
		row("caller runs", d.CallerRuns),
		row("failed", d.Failed),
		row("retried", d.Retried),
		row("demoted", s.Demoted),
		row("transitions", s.Transitions),
		row("rejected", s.Rejected),
	)
}

func tierStyle(t propagation.Tier) lipgloss.Style {
	switch t {
	case propagation.Critical:
		return styles.TierCritical
	case propagation.High:
		return styles.TierHigh
	case propagation.Normal:
		return styles.TierNormal
	default:
		return styles.TierLow
	}
}

func (m Model) renderPropagation() string {
	p := m.stats.Propagation
	rows := []string{
		row("received", p.Received),
		row("debounced", p.Dropped),
		row("combined", p.Combined),
		row("batches", p.Forwarded),
		row("events out", p.ForwardedEvents),
		row("buffered", p.Pending),
	}
	var ready []string
	for _, t := range propagation.Tiers {
		ready = append(ready, tierStyle(t).Render(fmt.Sprintf("%s:%d", t, p.Ready[t])))
	}
	rows = append(rows, styles.Label.Render("ready")+strings.Join(ready, " "))
	return panel("Propagation", rows...)
}

func (m Model) renderBudget() string {
	s := m.stats
	perTick := "unlimited"
	if s.BudgetPerTick > 0 {
		perTick = fmt.Sprint(s.BudgetPerTick)
	}
	rec := s.Recommendation
	advice := styles.Muted.Render("steady")
	if !rec.IsZero() {
		advice = styles.Warning.Render(rec.String())
	}
	rows := []string{
		row("per tick", perTick),
		row("deferred", s.DeferredRequests),
		row("deferred Σ", s.DeferredTotal),
		row("redeemed Σ", s.RedeemedTotal),
		"",
		styles.PanelTitle.Render("Adaptive"),
		row("batch size", s.BatchSize),
		row("load", s.Load),
		styles.Label.Render("advice") + advice,
	}
	if rec.Reason != "" {
		rows = append(rows, styles.Muted.Render(truncate(rec.Reason, 34)))
	}
	return panel("Budget", rows...)
}

func (m Model) renderTimeline() string {
	if len(m.history) == 0 {
		return styles.Muted.Render("waiting for ticks…")
	}
	last := m.last
	line := fmt.Sprintf("%s %s  last %s (serial %d, parallel %d, batches %d, deferred %d)",
		styles.Muted.Render("tick time"),
		sparkline(m.history, m.budget),
		formatDuration(last.Duration), last.Serial, last.Parallel, last.Forwarded, last.Deferred,
	)
	return line
}

func (m Model) renderStatus() string {
	var parts []string
	if m.done {
		if m.err != nil {
			parts = append(parts, styles.ErrorMsg.Render("stopped: "+m.err.Error()))
		} else {
			parts = append(parts, styles.Secondary.Render("finished"))
		}
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, styles.HelpKey.Render("?")+" help  "+styles.HelpKey.Render("q")+" quit")
	return styles.HelpBar.Render(strings.Join(parts, "  │  "))
}

func renderHelp() string {
	keys := [][2]string{
		{"p", "pause updates"},
		{"+ / -", "add or remove a worker"},
		{"?", "toggle help"},
		{"q", "quit"},
	}
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s  %s\n", styles.HelpKey.Render(fmt.Sprintf("%-5s", k[0])), k[1])
	}
	return b.String()
}

// sparkline scales durations to bar glyphs. The scale tops out at the larger
// of the slowest tick and ceiling.
func sparkline(ds []time.Duration, ceiling time.Duration) string {
	top := ceiling
	for _, d := range ds {
		top = max(top, d)
	}
	if top <= 0 {
		return strings.Repeat(string(sparkBars[0]), len(ds))
	}
	var b strings.Builder
	for _, d := range ds {
		i := int(float64(d) / float64(top) * float64(len(sparkBars)-1))
		i = min(max(i, 0), len(sparkBars)-1)
		b.WriteString(styles.Health(float64(d), float64(ceiling)).Render(string(sparkBars[i])))
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
