package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	progressSpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	progressElapsedStyle = lipgloss.NewStyle().Faint(true)
)

type workFinishedMsg struct{}

// progressLine animates a single status line until the work it tracks
// reports back. The work itself runs outside the program.
type progressLine struct {
	spinner  spinner.Model
	label    string
	started  time.Time
	elapsed  time.Duration
	finished bool
}

func newProgressLine(label string, started time.Time) progressLine {
	return progressLine{
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(progressSpinnerStyle)),
		label:   label,
		started: started,
	}
}

func (p progressLine) Init() tea.Cmd {
	return p.spinner.Tick
}

func (p progressLine) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(workFinishedMsg); ok {
		p.finished = true
		return p, tea.Quit
	}

	tick, ok := msg.(spinner.TickMsg)
	if !ok {
		return p, nil
	}
	if tick.Time.After(p.started) {
		p.elapsed = tick.Time.Sub(p.started).Truncate(time.Second)
	}

	var cmd tea.Cmd
	p.spinner, cmd = p.spinner.Update(tick)
	return p, cmd
}

func (p progressLine) View() string {
	if p.finished {
		return ""
	}

	line := p.spinner.View() + " " + p.label
	if p.elapsed >= time.Second {
		line += " " + progressElapsedStyle.Render(p.elapsed.String())
	}
	return line
}

// runWithSpinner runs work in the background and returns its error once the
// progress line has been cleared.
func runWithSpinner(ctx context.Context, output io.Writer, label string, work func(context.Context) error) error {
	program := tea.NewProgram(
		newProgressLine(label, time.Now()),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	done := make(chan error, 1)
	go func() {
		done <- work(ctx)
		program.Send(workFinishedMsg{})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("render progress: %w", err)
	}
	return <-done
}
