// Package popup is the interactive front end of the bug reporter: a small
// terminal UI with one key per action and a status line.
package popup

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/composer"
)

// Actions are the operations behind the popup's keys.
type Actions interface {
	Generate(ctx context.Context) (*schemas.BugReport, error)
	Download(ctx context.Context) (string, error)
	Copy(ctx context.Context) error
	// MenuClick triggers the page context menu entry on the active tab.
	MenuClick(ctx context.Context) error
}

type action int

const (
	actionGenerate action = iota
	actionDownload
	actionCopy
	actionMenu
)

// statusMsg carries a composer status line update.
type statusMsg composer.Status

type doneMsg struct {
	action action
	report *schemas.BugReport
	path   string
	err    error
}

// Model is the popup state.
type Model struct {
	ctx      context.Context
	actions  Actions
	statuses <-chan composer.Status

	status composer.Status
	report *schemas.BugReport
	busy   bool
	saved  string
	width  int
}

// New creates the popup. statuses feeds the status line and may be nil.
func New(ctx context.Context, actions Actions, statuses <-chan composer.Status) Model {
	return Model{ctx: ctx, actions: actions, statuses: statuses}
}

// StatusSink returns a composer.StatusFunc feeding ch without blocking;
// updates are dropped while ch is full.
func StatusSink(ch chan<- composer.Status) composer.StatusFunc {
	return func(s composer.Status) {
		select {
		case ch <- s:
		default:
		}
	}
}

func (m Model) Init() tea.Cmd {
	return waitForStatus(m.statuses)
}

func waitForStatus(ch <-chan composer.Status) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg(s)
	}
}

// HasReport reports whether the export keys are enabled.
func (m Model) HasReport() bool { return m.report != nil }

// Busy reports whether an action is running.
func (m Model) Busy() bool { return m.busy }

// Status returns the current status line.
func (m Model) Status() composer.Status { return m.status }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "g":
			return m.start(actionGenerate)
		case "m":
			return m.start(actionMenu)
		case "d":
			if m.report != nil {
				return m.start(actionDownload)
			}
		case "c":
			if m.report != nil {
				return m.start(actionCopy)
			}
		}

	case statusMsg:
		m.status = composer.Status(msg)
		return m, waitForStatus(m.statuses)

	case doneMsg:
		m.busy = false
		if msg.err != nil {
			return m, nil
		}
		switch msg.action {
		case actionGenerate:
			m.report = msg.report
		case actionDownload:
			m.saved = msg.path
		}
	}
	return m, nil
}

func (m Model) start(a action) (tea.Model, tea.Cmd) {
	m.busy = true
	ctx, actions := m.ctx, m.actions
	return m, func() tea.Msg {
		switch a {
		case actionGenerate:
			report, err := actions.Generate(ctx)
			return doneMsg{action: a, report: report, err: err}
		case actionDownload:
			path, err := actions.Download(ctx)
			return doneMsg{action: a, path: path, err: err}
		case actionCopy:
			return doneMsg{action: a, err: actions.Copy(ctx)}
		default:
			return doneMsg{action: a, err: actions.MenuClick(ctx)}
		}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Bug Reporter"))
	b.WriteString("\n\n")

	if m.status.Message != "" {
		b.WriteString(statusStyle(m.status.Class).Render(m.status.Message))
	} else {
		b.WriteString(infoStyle.Render("Ready."))
	}
	b.WriteString("\n")

	if r := m.report; r != nil {
		fmt.Fprintf(&b, "\n%s  %s\n", r.ReportID, r.Page.Title)
		fmt.Fprintf(&b, "console: %d  errors: %d  requests: %d (%d failed)\n",
			len(r.Page.ConsoleLogs), len(r.Page.PageErrors), r.Network.Summary.Total, r.Network.Summary.Failed)
	}
	if m.saved != "" {
		fmt.Fprintf(&b, "saved: %s\n", m.saved)
	}

	exportsEnabled := m.report != nil && !m.busy
	keys := []string{
		m.key("g", "generate", !m.busy),
		m.key("d", "download", exportsEnabled),
		m.key("c", "copy", exportsEnabled),
		m.key("m", "menu", !m.busy),
		m.key("q", "quit", true),
	}
	b.WriteString(helpStyle.Render(strings.Join(keys, "  ")))

	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	return panel.Render(b.String())
}

func (m Model) key(k, label string, enabled bool) string {
	if !enabled {
		return disabledStyle.Render(k + " " + label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, keyStyle.Render(k), " "+label)
}
