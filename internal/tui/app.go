package tui

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/ticksched/internal/scheduler"
)

// App wraps the bubbletea program.
type App struct {
	program *tea.Program
}

// New creates a dashboard for src. tickInterval is the host's target tick
// length.
func New(src Source, refresh, tickInterval time.Duration, opts ...tea.ProgramOption) *App {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &App{program: tea.NewProgram(NewModel(src, refresh, tickInterval), opts...)}
}

// Report forwards a finished tick. It is safe to call from the tick
// goroutine and blocks until the program is running.
func (a *App) Report(r scheduler.TickReport) {
	a.program.Send(ReportMsg(r))
}

// Done tells the dashboard the host stopped.
func (a *App) Done(err error) {
	a.program.Send(DoneMsg{Err: err})
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-sigChan:
			a.program.Quit()
		case <-ctx.Done():
			a.program.Quit()
		case <-stop:
		}
	}()

	_, err := a.program.Run()
	return err
}
