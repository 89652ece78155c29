// ABOUTME: Bubbletea model for the bridge status TUI
// ABOUTME: Renders bridge state and turns keys into control commands
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/engine"
	"github.com/exjack/exjack-go/pkg/exjack"
)

// defaultNote is the tone selected when stepping up from a non-tone mode
const defaultNote byte = 69

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Commander accepts control commands from the keyboard
type Commander interface {
	Handle(cmd control.Command) (control.Ack, error)
}

// Model represents the TUI state
type Model struct {
	commander Commander
	poll      func() exjack.Status
	interval  time.Duration
	startTime time.Time

	status exjack.Status

	// Last keyboard command
	lastAck control.Ack
	lastErr error
	sent    int

	showDebug bool
	quitting  bool

	width  int
	height int
}

type tickMsg time.Time

// StatusMsg replaces the displayed bridge status
type StatusMsg exjack.Status

// AckMsg carries the acknowledgement of a keyboard command
type AckMsg struct {
	Ack control.Ack
	Err error
}

// Init starts the refresh tick
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	if m.poll == nil {
		return nil
	}
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		if m.poll != nil {
			m.applyStatus(StatusMsg(m.poll()))
		}
		return m, m.tick()
	case StatusMsg:
		m.applyStatus(msg)
	case AckMsg:
		m.lastAck = msg.Ack
		m.lastErr = msg.Err
		m.sent++
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping bridge...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("exjack bridge"))
	b.WriteString("\n\n")
	b.WriteString(m.renderBridge())
	b.WriteString("\n")
	b.WriteString(m.renderControl())
	b.WriteString("\n")
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓:Note  0:Silence  p:PCM  l:Listener  d:Debug  q:Quit"))
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-11s", name+":")))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

// renderBridge renders lifecycle and server info
func (m Model) renderBridge() string {
	var b strings.Builder
	field(&b, "State", m.status.State.String())
	if m.status.SampleRate > 0 {
		field(&b, "Server", fmt.Sprintf("%dHz, %d frames/cycle", m.status.SampleRate, m.status.BufferSize))
	} else {
		field(&b, "Server", "not connected")
	}

	port := m.status.Port
	if port == "" {
		port = "(none)"
	}
	if len(m.status.Connections) > 0 {
		port += " -> " + strings.Join(m.status.Connections, ", ")
	}
	field(&b, "Port", truncate(port, 60))
	field(&b, "Uptime", time.Since(m.startTime).Round(time.Second).String())
	return b.String()
}

// renderControl renders the parameter and the listener
func (m Model) renderControl() string {
	var b strings.Builder
	field(&b, "Parameter", fmt.Sprintf("%3d %s", m.status.Param, describeParam(m.status.Param)))
	field(&b, "Note", "["+renderBar(int(noteOf(m.status.Param)), int(engine.MaxToneNote), 20)+"]")

	listener := "off"
	if m.status.Listener {
		listener = "on"
	}
	field(&b, "Listener", listener)

	if m.sent > 0 {
		last := fmt.Sprintf("#%d %s(%d) %s", m.lastAck.Seq, m.lastAck.Opcode, m.lastAck.Arg, m.lastAck.Result)
		field(&b, "Last cmd", last)
	}
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(truncate(m.lastErr.Error(), 70)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderStats renders callback statistics
func (m Model) renderStats() string {
	var b strings.Builder
	field(&b, "Cycles", fmt.Sprintf("%d (%d frames)", m.status.Cycles, m.status.Frames))
	field(&b, "Faults", fmt.Sprintf("%d", m.status.Faults))
	field(&b, "XRuns", fmt.Sprintf("%d", m.status.XRuns))
	field(&b, "Queued", fmt.Sprintf("%d samples", m.status.Queued))
	return b.String()
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	var b strings.Builder
	field(&b, "ID", m.status.ID)
	field(&b, "Seq", fmt.Sprintf("%d last=%s result=%s", m.status.Seq, m.status.LastOpcode, m.status.LastResult))
	field(&b, "Terminal", fmt.Sprintf("%dx%d", m.width, m.height))
	return b.String()
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up":
		return m, m.setParameter(stepUp(m.status.Param))
	case "down":
		return m, m.setParameter(stepDown(m.status.Param))
	case "0":
		return m, m.setParameter(engine.ParamSilence)
	case "p":
		return m, m.setParameter(engine.ParamExternalPCM)
	case "l":
		return m, m.send(control.Command{Opcode: control.OpStartAsyncListener})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) setParameter(value byte) tea.Cmd {
	// Optimistic so repeated keys step from the new value before the next poll
	m.status.Param = value
	m.status.Mode = engine.ModeFor(value)
	return m.send(control.Command{Opcode: control.OpSetParameter, Arg: value})
}

func (m Model) send(cmd control.Command) tea.Cmd {
	if m.commander == nil {
		return nil
	}
	commander := m.commander
	return func() tea.Msg {
		ack, err := commander.Handle(cmd)
		return AckMsg{Ack: ack, Err: err}
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	m.status = exjack.Status(msg)
}

func stepUp(param byte) byte {
	switch {
	case engine.ModeFor(param) != engine.ModeTone:
		return defaultNote
	case param < engine.MaxToneNote:
		return param + 1
	default:
		return param
	}
}

func stepDown(param byte) byte {
	switch {
	case engine.ModeFor(param) != engine.ModeTone:
		return defaultNote
	case param > 1:
		return param - 1
	default:
		return param
	}
}

func noteOf(param byte) byte {
	if engine.ModeFor(param) == engine.ModeTone {
		return param
	}
	return 0
}

var noteNames = [...]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func describeParam(param byte) string {
	switch engine.ModeFor(param) {
	case engine.ModeTone:
		return fmt.Sprintf("tone %s%d (%.1fHz)", noteNames[int(param)%12], int(param)/12-1, engine.NoteFrequency(param))
	case engine.ModeExternalPCM:
		return "external PCM"
	default:
		return "silence"
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
