// Package tui renders the live dashboard. It is purely a consumer of the
// queue sink: the pipeline pushes events, the dashboard draws them and
// feeds pause/resume/cancel back through the control channel.
package tui

import (
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andrewyernau/rookt/internal/event"
)

const maxLogLines = 8

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type eventMsg struct{ ev event.Event }

type streamClosedMsg struct{}

// Model is the bubbletea model of the dashboard.
type Model struct {
	sink *event.QueueSink

	dataset  string
	phase    string
	dlBytes  int64
	dlTotal  int64
	pass     int
	games    int64
	valid    int64
	skipped  int64
	finished int

	logs   []string
	paused bool
	done   bool
	width  int
}

// New creates a dashboard reading from sink.
func New(sink *event.QueueSink) Model {
	return Model{sink: sink, phase: "starting", width: 80}
}

func (m Model) Init() tea.Cmd {
	return waitEvent(m.sink.Events())
}

func waitEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			m.sink.SendControl(event.ControlCancel)
			m.phase = "cancelling"
			return m, nil
		case "p":
			m.sink.SendControl(event.ControlPause)
			m.paused = true
			return m, nil
		case "r":
			m.sink.SendControl(event.ControlResume)
			m.paused = false
			return m, nil
		}
		return m, nil

	case eventMsg:
		m.apply(msg.ev)
		return m, waitEvent(m.sink.Events())

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(ev event.Event) {
	switch ev := ev.(type) {
	case event.DatasetStarted:
		m.dataset = ev.ID
		m.phase = "downloading"
		m.dlBytes, m.dlTotal = 0, -1
		m.pass, m.games, m.valid, m.skipped = 0, 0, 0, 0
	case event.DownloadProgress:
		m.phase = "downloading"
		m.dlBytes, m.dlTotal = ev.Bytes, ev.Total
	case event.PassProgress:
		m.pass = ev.Pass
		m.phase = fmt.Sprintf("pass %d", ev.Pass)
		m.games, m.valid, m.skipped = ev.Games, ev.Valid, ev.Skipped
	case event.DatasetFinished:
		m.finished++
		m.phase = "committed"
		m.pushLog(fmt.Sprintf("%s committed: %d games, %d players", ev.ID, ev.Games, ev.Players))
	case event.Log:
		line := ev.Message
		switch ev.Level {
		case event.LevelWarn:
			line = warnStyle.Render(line)
		case event.LevelError:
			line = errorStyle.Render(line)
		}
		m.pushLog(line)
	case event.PipelineDone:
		m.done = true
		m.phase = "done"
		m.pushLog(fmt.Sprintf("pipeline complete: %d committed, %d pruned", ev.Committed, ev.Pruned))
	}
}

func (m *Model) pushLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rookt"))
	if m.paused {
		b.WriteString(" " + pausedStyle.Render("PAUSED"))
	}
	b.WriteString("\n\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), valueStyle.Render(value))
	}
	row("dataset", orDash(m.dataset))
	row("phase", m.phase)
	row("months", fmt.Sprintf("%d/12", m.finished))

	if m.phase == "downloading" {
		b.WriteString("\n" + m.downloadView() + "\n")
	}
	if m.pass > 0 {
		row("games", fmt.Sprintf("%d scanned, %d valid, %d skipped", m.games, m.valid, m.skipped))
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("p pause · r resume · q quit"))
	return b.String()
}

func (m Model) downloadView() string {
	got := datasize.ByteSize(m.dlBytes).HR()
	if m.dlTotal < 0 {
		return fmt.Sprintf("  %s downloaded", got)
	}
	width := m.width - 24
	if width < 10 {
		width = 10
	}
	ratio := float64(m.dlBytes) / float64(m.dlTotal)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	bar := barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("  %s %s / %s", bar, got, datasize.ByteSize(m.dlTotal).HR())
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
