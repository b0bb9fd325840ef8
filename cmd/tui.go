// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/history"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	title  string
	source string
	start  time.Time

	// Latest feed state
	status    string
	writes    uint64
	forwarded uint64
	errors    uint64
	vector    *nodestate.Vector
	grids     []string // dims of recent grids, oldest first

	eventLog      []eventLogEntry
	maxLogEntries int
	log           viewport.Model

	// Payload injection, nil when the source is read-only
	inject func([]byte) error
	input  textinput.Model

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

// Messages
type tickMsg time.Time
type frameMsg statusfeed.Frame
type feedClosedMsg struct {
	err error
}
type injectResultMsg struct {
	err error
}

// formatUptime formats a duration as "1 hour, 2 minutes, and 3 seconds"
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name    string
		seconds int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := total / u.seconds
		total %= u.seconds
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(title, source string, inject func([]byte) error) model {
	ti := textinput.New()
	ti.Placeholder = `[[0.1,0.9,0.5],[0.3,0.0,1.0]]`
	ti.CharLimit = 4096
	ti.Width = 60

	return model{
		title:         title,
		source:        source,
		start:         time.Now(),
		status:        "(waiting for status)",
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 200,
		log:           viewport.New(76, 10),
		inject:        inject,
		input:         ti,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case tickMsg:
		return m, tickCmd()

	case frameMsg:
		m.applyFrame(statusfeed.Frame(msg))

	case feedClosedMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Feed closed: %v", msg.err), true)
		} else {
			m.addLogEntry("Feed closed", true)
		}

	case injectResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("INJECT FAILED: %v", msg.err), true)
		}
	}

	return m, nil
}

func (m model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "esc":
			m.input.Blur()
			return m, nil
		case "enter":
			payload := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			m.input.Blur()
			if payload == "" {
				return m, nil
			}
			m.addLogEntry(fmt.Sprintf("Injecting %d bytes", len(payload)), false)
			return m, injectCmd(m.inject, []byte(payload))
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "i":
		if m.inject != nil {
			cmd := m.input.Focus()
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func injectCmd(inject func([]byte) error, payload []byte) tea.Cmd {
	return func() tea.Msg {
		return injectResultMsg{err: inject(payload)}
	}
}

// applyFrame folds one feed frame into the model
func (m *model) applyFrame(f statusfeed.Frame) {
	m.status = f.Status
	m.writes = f.Writes
	m.forwarded = f.Forwarded
	m.errors = f.Errors

	if v, ok := f.Vector(); ok {
		m.vector = &v
	}

	if !f.Event {
		m.addLogEntry("Connected: "+f.Status, false)
		return
	}

	outcome := f.OutcomeValue()
	dims := fmt.Sprintf("%dx%d", f.Rows, f.Cols)
	if outcome.Decoded() {
		m.grids = append(m.grids, dims)
		if len(m.grids) > history.Capacity {
			m.grids = m.grids[len(m.grids)-history.Capacity:]
		}
	}

	switch outcome {
	case bridge.OutcomeForwarded:
		m.addLogEntry(fmt.Sprintf("Grid %s forwarded %s", dims, m.vectorString()), false)
	case bridge.OutcomeForwardFailed:
		m.addLogEntry(fmt.Sprintf("Grid %s FORWARD FAILED: %s", dims, f.Error), true)
	case bridge.OutcomeNotJSON, bridge.OutcomeMalformed:
		m.addLogEntry(fmt.Sprintf("%s (%d bytes): %s", outcome, f.RawLen, f.Error), true)
	case bridge.OutcomeScalar:
		m.addLogEntry(fmt.Sprintf("Scalar %.4f", f.Scalar), false)
	default:
		m.addLogEntry(fmt.Sprintf("Ignored %d bytes", f.RawLen), false)
	}
}

func (m *model) vectorString() string {
	if m.vector == nil {
		return "-"
	}
	return m.vector.String()
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}

	m.log.SetContent(m.renderLog())
	m.log.GotoBottom()
}

func (m *model) resizeLog() {
	m.log.Width = m.width - 6
	m.log.Height = m.height - 20 // Reserve space for header, status and states
	if m.log.Height < 5 {
		m.log.Height = 5
	}
	m.log.SetContent(m.renderLog())
	m.log.GotoBottom()
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	// Cell colours by node state, strongest first
	stateColors = map[nodestate.State]lipgloss.Color{
		nodestate.StateFull:  lipgloss.Color("196"),
		nodestate.StateHigh:  lipgloss.Color("208"),
		nodestate.StateLow:   lipgloss.Color("220"),
		nodestate.StateLeast: lipgloss.Color("240"),
	}
)

// renderStates draws the 2x3 actuator grid
func renderStates(v *nodestate.Vector) string {
	if v == nil {
		return headerStyle.Render("(no frame yet)")
	}

	var rows []string
	for r := 0; r < nodestate.Rows; r++ {
		cells := make([]string, 0, nodestate.Cols)
		for c := 0; c < nodestate.Cols; c++ {
			s := v[r*nodestate.Cols+c]
			cell := lipgloss.NewStyle().
				Width(9).
				Align(lipgloss.Center).
				Foreground(lipgloss.Color("0")).
				Background(stateColors[s]).
				Render(fmt.Sprintf("%d %s", s, nodestate.StateName(s)))
			cells = append(cells, cell)
		}
		rows = append(rows, strings.Join(cells, " "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m model) renderLog() string {
	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, entry := range m.eventLog {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				errorStyle.Render("✗ "+entry.message),
			))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				infoStyle.Render("ℹ "+entry.message),
			))
		}
	}
	return b.String()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")

	keys := "q quit"
	if m.inject != nil {
		keys = "i inject, q quit"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Up: %s | %s",
		m.source, formatUptime(time.Since(m.start)), keys)))
	s.WriteString("\n\n")

	if m.connectionLost {
		s.WriteString(errorStyle.Render("✗ Connection lost"))
		s.WriteString("\n\n")
	}

	// Status and counters
	var errPercent float64
	if m.writes > 0 {
		errPercent = float64(m.errors) * 100.0 / float64(m.writes)
	}
	statusContent := strings.Builder{}
	statusContent.WriteString(valueStyle.Render(m.status))
	statusContent.WriteString("\n")
	statusContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Writes:"), valueStyle.Render(fmt.Sprintf("%d", m.writes)),
		labelStyle.Render("Forwarded:"), valueStyle.Render(fmt.Sprintf("%d", m.forwarded)),
		labelStyle.Render("Errors:"), func() string {
			text := fmt.Sprintf("%d (%.1f%%)", m.errors, errPercent)
			if m.errors > 0 {
				return errorStyle.Render(text)
			}
			return valueStyle.Render(text)
		}(),
	))
	s.WriteString(boxStyle.Render(statusContent.String()))
	s.WriteString("\n\n")

	// Node states
	s.WriteString(labelStyle.Render("Node States:"))
	s.WriteString("\n")
	statesContent := renderStates(m.vector)
	if len(m.grids) > 0 {
		statesContent += "\n" + headerStyle.Render("Recent grids: "+strings.Join(m.grids, " "))
	}
	s.WriteString(boxStyle.Render(statesContent))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.log.View()))

	if m.input.Focused() {
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Payload: "))
		s.WriteString(m.input.View())
	}

	return s.String()
}
