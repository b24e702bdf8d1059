package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
	"github.com/tomaslejdung/goscribble/pkg/role"
	"github.com/tomaslejdung/goscribble/pkg/settings"
)

// sessionEventMsg carries a session notification into the update loop
type sessionEventMsg SessionEvent

// sessionClosedMsg indicates the session event channel closed
type sessionClosedMsg struct{}

// tickMsg drives the periodic redraw
type tickMsg time.Time

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	roomCodeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	keySepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

const maxLogLines = 8

type model struct {
	session  *Session
	settings settings.UserSettings

	tool  string
	color int // index into protocol.Palette
	width float64

	recent   []string // recent activity log, newest last
	lastErr  string
	quitting bool
}

// RunTUI runs the session interface until the user quits.
func RunTUI(session *Session, userSettings settings.UserSettings) error {
	colorIdx := 0
	for i, c := range protocol.Palette {
		if c == userSettings.Color {
			colorIdx = i
			break
		}
	}
	m := model{
		session:  session,
		settings: userSettings,
		tool:     userSettings.Tool,
		color:    colorIdx,
		width:    userSettings.Width,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.session.Events()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case sessionEventMsg:
		if msg.Kind == "error" {
			m.lastErr = msg.Description
		} else if msg.Description != "" {
			m.recent = append(m.recent, msg.Description)
			if len(m.recent) > maxLogLines {
				m.recent = m.recent[len(m.recent)-maxLogLines:]
			}
		}
		return m, m.waitForEvent()
	case sessionClosedMsg:
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	caps := role.CapabilitiesFor(m.session.Role())

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.saveSettings()
		return m, tea.Quit
	case "1":
		m.tool = protocol.ToolPen
	case "2":
		m.tool = protocol.ToolHighlighter
	case "3":
		m.tool = protocol.ToolEraser
	case "c":
		m.color = (m.color + 1) % len(protocol.Palette)
	case "+", "=":
		if m.width < settings.MaxWidth {
			m.width++
		}
	case "-":
		if m.width > settings.MinWidth {
			m.width--
		}
	case "x":
		if !caps.CanClearAll {
			m.lastErr = "your role cannot clear annotations"
			break
		}
		if err := m.session.ClearAll(); err != nil {
			m.lastErr = err.Error()
		} else {
			m.recent = append(m.recent, "cleared all annotations")
		}
	case "u":
		if id := m.latestOwnStroke(); id != "" {
			if err := m.session.DeleteStroke(id); err != nil {
				m.lastErr = err.Error()
			}
		}
	case "r":
		m.session.RequestSync()
		m.recent = append(m.recent, "requested state sync")
	}
	return m, nil
}

// latestOwnStroke finds this participant's most recent stroke.
func (m model) latestOwnStroke() string {
	var id string
	var latest int64 = -1
	for _, s := range m.session.Store().Snapshot() {
		if s.OwnerID == m.session.ParticipantID() && s.CreatedAt >= latest {
			latest = s.CreatedAt
			id = s.StrokeID
		}
	}
	return id
}

func (m model) saveSettings() {
	m.settings.Tool = m.tool
	m.settings.Color = protocol.Palette[m.color]
	m.settings.Width = m.width
	settings.Save(m.settings)
}

func (m model) View() string {
	if m.quitting {
		return "Leaving session...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("GoScribble"))
	b.WriteString("  ")
	b.WriteString(roomCodeStyle.Render(m.session.RoomCode()))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%s)", m.session.Role())))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderParticipants())
	b.WriteString("\n")

	if len(m.recent) > 0 {
		b.WriteString(boxStyle.Render(statusStyle.Render("Activity") + "\n" + strings.Join(m.recent, "\n")))
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m model) renderStatus() string {
	toolNames := map[string]string{
		protocol.ToolPen:         "pen",
		protocol.ToolHighlighter: "highlighter",
		protocol.ToolEraser:      "eraser",
	}
	lines := []string{
		fmt.Sprintf("Tool    %s", selectedStyle.Render(toolNames[m.tool])),
		fmt.Sprintf("Color   %s", selectedStyle.Render(protocol.Palette[m.color])),
		fmt.Sprintf("Width   %s", selectedStyle.Render(fmt.Sprintf("%.0fpx", m.width))),
		fmt.Sprintf("Strokes %s", normalStyle.Render(fmt.Sprintf("%d", m.session.Store().Len()))),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m model) renderParticipants() string {
	roster := m.session.Roster()
	sort.Slice(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })

	cursors := make(map[string]Cursor)
	for _, c := range m.session.Cursors() {
		cursors[c.ParticipantID] = c
	}

	lines := []string{statusStyle.Render(fmt.Sprintf("Participants (%d)", len(roster)+1))}
	lines = append(lines, selectedStyle.Render("you")+dimStyle.Render(fmt.Sprintf(" (%s)", m.session.Role())))
	for _, p := range roster {
		line := normalStyle.Render(p.Name) + dimStyle.Render(fmt.Sprintf(" (%s)", p.Role))
		if c, ok := cursors[p.ParticipantID]; ok {
			line += statusStyle.Render(fmt.Sprintf("  @ %.2f, %.2f", c.X, c.Y))
		}
		lines = append(lines, line)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m model) renderHelp() string {
	sep := keySepStyle.Render(" | ")
	items := []string{
		keyStyle.Render("1-3") + dimStyle.Render(" tool"),
		keyStyle.Render("c") + dimStyle.Render(" color"),
		keyStyle.Render("+/-") + dimStyle.Render(" width"),
		keyStyle.Render("u") + dimStyle.Render(" undo stroke"),
		keyStyle.Render("x") + dimStyle.Render(" clear"),
		keyStyle.Render("r") + dimStyle.Render(" sync"),
		keyStyle.Render("q") + dimStyle.Render(" quit"),
	}
	return strings.Join(items, sep)
}
