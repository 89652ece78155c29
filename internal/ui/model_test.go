// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and rendering
package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/engine"
	"github.com/exjack/exjack-go/pkg/exjack"
)

type fakeSource struct {
	status   exjack.Status
	commands []control.Command
	err      error
}

func (f *fakeSource) Handle(cmd control.Command) (control.Ack, error) {
	f.commands = append(f.commands, cmd)
	if cmd.Opcode == control.OpSetParameter {
		f.status.Param = cmd.Arg
	}
	return control.Ack{Seq: uint32(len(f.commands)), Opcode: cmd.Opcode, Arg: cmd.Arg}, f.err
}

func (f *fakeSource) Status() exjack.Status {
	return f.status
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and runs the resulting command, if any
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(Model)
	if cmd != nil {
		if ack, ok := cmd().(AckMsg); ok {
			next, _ = m.Update(ack)
			m = next.(Model)
		}
	}
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, 0)

	if model.interval != DefaultRefresh {
		t.Errorf("expected default refresh %v, got %v", DefaultRefresh, model.interval)
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
	if model.Init() != nil {
		t.Error("expected no tick without a source")
	}
}

func TestNewModelReadsInitialStatus(t *testing.T) {
	src := &fakeSource{status: exjack.Status{State: exjack.StateActive, Param: 60}}
	model := NewModel(src, 0)

	if model.status.State != exjack.StateActive {
		t.Errorf("expected state active, got %s", model.status.State)
	}
	if model.Init() == nil {
		t.Error("expected a refresh tick with a source")
	}
}

func TestStatusMsg(t *testing.T) {
	model := NewModel(nil, 0)

	next, _ := model.Update(StatusMsg{SampleRate: 48000, BufferSize: 256, Port: "ex_jack_output"})
	model = next.(Model)

	if model.status.SampleRate != 48000 || model.status.BufferSize != 256 {
		t.Errorf("unexpected server info: %+v", model.status)
	}
	if model.status.Port != "ex_jack_output" {
		t.Errorf("expected port name, got %q", model.status.Port)
	}
}

func TestTickPollsSource(t *testing.T) {
	src := &fakeSource{}
	model := NewModel(src, 0)

	src.status.Cycles = 42
	next, cmd := model.Update(tickMsg{})
	model = next.(Model)

	if model.status.Cycles != 42 {
		t.Errorf("expected cycles 42 after tick, got %d", model.status.Cycles)
	}
	if cmd == nil {
		t.Error("expected tick to reschedule")
	}
}

func TestNoteKeys(t *testing.T) {
	src := &fakeSource{}
	model := NewModel(src, 0)

	model = press(t, model, "up")
	if src.status.Param != defaultNote {
		t.Fatalf("expected up from silence to select %d, got %d", defaultNote, src.status.Param)
	}

	model = press(t, model, "up")
	model = press(t, model, "up")
	if src.status.Param != defaultNote+2 {
		t.Errorf("expected %d, got %d", defaultNote+2, src.status.Param)
	}

	model = press(t, model, "down")
	if src.status.Param != defaultNote+1 {
		t.Errorf("expected %d, got %d", defaultNote+1, src.status.Param)
	}

	for _, cmd := range src.commands {
		if cmd.Opcode != control.OpSetParameter {
			t.Errorf("expected SET_PARAMETER, got %s", cmd.Opcode)
		}
	}
	if model.lastAck.Seq != uint32(len(src.commands)) {
		t.Errorf("expected last ack seq %d, got %d", len(src.commands), model.lastAck.Seq)
	}
}

func TestNoteBounds(t *testing.T) {
	tests := []struct {
		param byte
		up    byte
		down  byte
	}{
		{param: 1, up: 2, down: 1},
		{param: 127, up: 127, down: 126},
		{param: 0, up: defaultNote, down: defaultNote},
		{param: 128, up: defaultNote, down: defaultNote},
		{param: 200, up: defaultNote, down: defaultNote},
	}

	for _, tt := range tests {
		if got := stepUp(tt.param); got != tt.up {
			t.Errorf("stepUp(%d) = %d, want %d", tt.param, got, tt.up)
		}
		if got := stepDown(tt.param); got != tt.down {
			t.Errorf("stepDown(%d) = %d, want %d", tt.param, got, tt.down)
		}
	}
}

func TestModeKeys(t *testing.T) {
	src := &fakeSource{status: exjack.Status{Param: 60}}
	model := NewModel(src, 0)

	model = press(t, model, "p")
	if src.status.Param != engine.ParamExternalPCM {
		t.Errorf("expected external PCM, got %d", src.status.Param)
	}

	model = press(t, model, "0")
	if src.status.Param != engine.ParamSilence {
		t.Errorf("expected silence, got %d", src.status.Param)
	}

	press(t, model, "l")
	last := src.commands[len(src.commands)-1]
	if last.Opcode != control.OpStartAsyncListener {
		t.Errorf("expected START_ASYNC_LISTENER, got %s", last.Opcode)
	}
}

func TestCommandErrorShown(t *testing.T) {
	src := &fakeSource{err: errors.New("channel closed")}
	model := NewModel(src, 0)
	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)

	model = press(t, model, "p")

	if model.lastErr == nil {
		t.Fatal("expected command error to be recorded")
	}
	if !strings.Contains(model.View(), "channel closed") {
		t.Error("expected error in view")
	}
}

func TestDebugToggle(t *testing.T) {
	model := NewModel(nil, 0)

	model = press(t, model, "d")
	if !model.showDebug {
		t.Error("expected debug on")
	}
	model = press(t, model, "d")
	if model.showDebug {
		t.Error("expected debug off")
	}
}

func TestQuit(t *testing.T) {
	model := NewModel(nil, 0)

	next, cmd := model.Update(key("q"))
	model = next.(Model)

	if !model.quitting {
		t.Error("expected quitting")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestViewLoading(t *testing.T) {
	model := NewModel(nil, 0)
	if model.View() != "Loading..." {
		t.Errorf("expected loading view before window size, got %q", model.View())
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, 0)
	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)
	next, _ = model.Update(StatusMsg{
		State:       exjack.StateActive,
		Param:       69,
		SampleRate:  48000,
		BufferSize:  256,
		Port:        "ex_jack_output",
		Connections: []string{"system:playback_1"},
		XRuns:       3,
	})
	model = next.(Model)

	view := model.View()
	for _, want := range []string{"ACTIVE", "48000Hz", "system:playback_1", "A4", "440.0Hz"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestDescribeParam(t *testing.T) {
	tests := []struct {
		param byte
		want  string
	}{
		{0, "silence"},
		{60, "tone C4"},
		{128, "external PCM"},
		{255, "silence"},
	}

	for _, tt := range tests {
		if got := describeParam(tt.param); !strings.HasPrefix(got, tt.want) {
			t.Errorf("describeParam(%d) = %q, want prefix %q", tt.param, got, tt.want)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, max, width int
		expected          string
	}{
		{0, 100, 10, "░░░░░░░░░░"},
		{50, 100, 10, "█████░░░░░"},
		{100, 100, 10, "██████████"},
		{5, 0, 4, "░░░░"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.value, tt.max, tt.width); got != tt.expected {
			t.Errorf("renderBar(%d, %d, %d) = %q, want %q", tt.value, tt.max, tt.width, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is too long", 10, "this is..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.length); got != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.length, got, tt.expected)
		}
	}
}
