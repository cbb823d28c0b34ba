// Package monitor is a live terminal dashboard for a project's
// orchestration state, refreshed by filesystem events and a ticker.
package monitor

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/render"
	"github.com/skondo/overture/internal/status"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

type fsEventMsg struct{}

// Model is the bubbletea model behind `overture monitor`.
type Model struct {
	root    string
	logger  *log.Logger
	watcher *fsnotify.Watcher
	report  status.Report
	err     error
}

func newModel(root string, logger *log.Logger) (Model, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Model{}, fmt.Errorf("create watcher: %w", err)
	}
	// Watch failures degrade to ticker-only refresh.
	if err := watcher.Add(config.Dir(root)); err != nil {
		logger.Printf("[WARN] watch failed dir=%s error=%v", config.Dir(root), err)
	}

	m := Model{root: root, logger: logger, watcher: watcher}
	m.reload()
	return m, nil
}

func (m *Model) reload() {
	report, err := status.Collect(m.root, m.logger)
	m.report, m.err = report, err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent blocks on the next watcher event. Errors and channel
// closure both fold into a refresh; the ticker keeps the view alive
// either way.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.watcher.Events:
		case <-m.watcher.Errors:
		}
		return fsEventMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.reload()
		return m, tick()
	case fsEventMsg:
		m.reload()
		return m, m.waitForEvent()
	}
	return m, nil
}

func (m Model) View() string {
	s := titleStyle.Render("overture monitor") + "  " + dimStyle.Render(m.root) + "\n"

	if m.err != nil {
		s += errStyle.Render("error: "+m.err.Error()) + "\n"
		return s
	}

	s += sectionStyle.Render("Lock") + "\n"
	if m.report.Lock.Locked {
		holder := "unknown"
		if m.report.Lock.PID != nil {
			holder = fmt.Sprintf("pid %d", *m.report.Lock.PID)
		}
		line := fmt.Sprintf("held by %s  command=%s  elapsed=%s", holder, m.report.Lock.Command, m.report.Lock.Elapsed)
		if m.report.Lock.Stale {
			line += "  " + errStyle.Render("(stale)")
		}
		s += line + "\n"
	} else {
		s += "free\n"
	}

	s += sectionStyle.Render("Tasks") + "\n"
	s += render.ProgressBar(m.report.Tasks, 40) + "\n"

	s += sectionStyle.Render("Last run") + "\n"
	if r := m.report.LastRun; r != nil {
		s += fmt.Sprintf("%s  state=%s  iteration=%d", r.RunID, r.State, r.Iteration)
		if r.Phase != "" {
			s += "  phase=" + r.Phase
		}
		s += "\n"
		if r.LastFailure != "" {
			s += errStyle.Render(r.LastFailure) + "\n"
		}
	} else {
		s += "none\n"
	}

	s += "\n" + dimStyle.Render("q to quit") + "\n"
	return s
}

// Run starts the dashboard and blocks until the user quits.
func Run(root string, logger *log.Logger) error {
	m, err := newModel(root, logger)
	if err != nil {
		return err
	}
	defer m.watcher.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
