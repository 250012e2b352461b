package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	mandel "github.com/marben/adaptive_mandel"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	stateStyle = map[string]lipgloss.Style{
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true),
		"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("green")),
		"stopped":   lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("red")),
	}

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

type eventMsg mandel.Event

type streamErrMsg struct{ err error }

// watchModel is a dashboard listing the passes of a plot as they complete.
type watchModel struct {
	next   func() (mandel.Event, error)
	ownRun bool
	table  table.Model
	last   mandel.Event
	err    error
}

func newWatchModel(next func() (mandel.Event, error), ownRun bool) watchModel {
	columns := []table.Column{
		{Title: "Pass", Width: 6},
		{Title: "Ceiling", Width: 20},
		{Title: "Live", Width: 10},
		{Title: "Live %", Width: 8},
		{Title: "Elapsed", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	t.SetStyles(s)

	return watchModel{next: next, ownRun: ownRun, table: t}
}

func (m watchModel) waitEvent() tea.Msg {
	e, err := m.next()
	if err != nil {
		return streamErrMsg{err}
	}
	return eventMsg(e)
}

func (m watchModel) Init() tea.Cmd {
	return m.waitEvent
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		e := mandel.Event(msg)
		m.last = e
		if e.Kind == mandel.EventPass {
			rows := append(m.table.Rows(), passRow(e))
			m.table.SetRows(rows)
			m.table.GotoBottom()
		}
		if finished(e, m.ownRun) {
			return m, tea.Quit
		}
		return m, m.waitEvent

	case streamErrMsg:
		m.err = fmt.Errorf("reading progress: %w", msg.err)
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func passRow(e mandel.Event) table.Row {
	pct := 0.0
	if e.Total > 0 {
		pct = 100 * float64(e.Live) / float64(e.Total)
	}
	return table.Row{
		fmt.Sprintf("%d", e.Pass),
		fmt.Sprintf("%d", e.Ceiling),
		fmt.Sprintf("%d", e.Live),
		fmt.Sprintf("%.2f", pct),
		e.Elapsed.String(),
	}
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("adaptive mandel"))
	b.WriteString("\n\n")
	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n")

	state := m.last.State
	if state == "" {
		state = "connecting"
	}
	if st, ok := stateStyle[state]; ok {
		state = st.Render(state)
	}
	b.WriteString(labelStyle.Render("state: ") + state)
	if m.last.Error != "" {
		b.WriteString("  " + stateStyle["failed"].Render(m.last.Error))
	}
	if m.err != nil {
		b.WriteString("\n" + stateStyle["failed"].Render(m.err.Error()))
	}
	b.WriteString("\n" + labelStyle.Render("q to quit") + "\n")
	return b.String()
}
