// Package app renders download progress as a small terminal UI.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/booklet/pkg/services"
)

type progressMsg services.Progress

type doneMsg struct{}

type model struct {
	bar      progress.Model
	booklet  string
	chapter  string
	done     int
	total    int
	failed   int
	finished []string
	quitting bool
}

func newModel() model {
	return model{
		bar: progress.New(progress.WithDefaultGradient()),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		ev := services.Progress(msg)
		if ev.Booklet != m.booklet {
			m.booklet = ev.Booklet
			m.failed = 0
		}
		m.done, m.total = ev.Done, ev.Total

		switch ev.Status {
		case services.StatusFailed:
			m.failed++
			m.chapter = ev.Chapter
		case services.StatusFetched:
			m.chapter = ev.Chapter
		case services.StatusAssembling:
			m.chapter = "assembling output..."
		case services.StatusComplete:
			line := fmt.Sprintf("%s (%d/%d chapters)", ev.Booklet, ev.Total-m.failed, ev.Total)
			m.finished = append(m.finished, line)
		}

		if m.total > 0 {
			return m, m.bar.SetPercent(float64(m.done) / float64(m.total))
		}
		return m, nil

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	for _, line := range m.finished {
		b.WriteString(okStyle.Render("✓ " + line))
		b.WriteString("\n")
	}

	if m.booklet != "" && m.total > 0 {
		b.WriteString(titleStyle.Render(m.booklet))
		b.WriteString("\n")
		b.WriteString(m.bar.View())
		b.WriteString(fmt.Sprintf(" %d/%d", m.done, m.total))
		if m.failed > 0 {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  %d failed", m.failed)))
		}
		b.WriteString("\n")
		b.WriteString(chapterStyle.Render(m.chapter))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("press q to quit"))
	b.WriteString("\n")
	return b.String()
}

// UI drives a processor while rendering its progress events.
type UI struct {
	proc *services.Processor
	opts []tea.ProgramOption
}

func New(proc *services.Processor, opts ...tea.ProgramOption) *UI {
	return &UI{proc: proc, opts: opts}
}

// Run processes every target booklet under the progress display and
// returns the completed run summaries. Quitting the display early
// cancels in-flight fetches and waits for the runs to wind down.
func (u *UI) Run(ctx context.Context) ([]*services.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newModel(), u.opts...)

	go func() {
		for ev := range u.proc.Progress() {
			prog.Send(progressMsg(ev))
		}
		prog.Send(doneMsg{})
	}()

	results := make(chan []*services.RunSummary, 1)
	go func() {
		results <- u.proc.RunAll(ctx)
		u.proc.Close()
	}()

	_, err := prog.Run()
	cancel()
	summaries := <-results
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
