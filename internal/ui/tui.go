// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the bridge status UI
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/exjack/exjack-go/pkg/exjack"
)

// DefaultRefresh is how often the TUI polls bridge status
const DefaultRefresh = 250 * time.Millisecond

// Source is what the TUI watches and drives
type Source interface {
	Commander
	Status() exjack.Status
}

// NewModel creates a new TUI model. A nil source gives a static model that
// only reacts to StatusMsg.
func NewModel(src Source, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	m := Model{
		interval:  refresh,
		startTime: time.Now(),
	}
	if src != nil {
		m.commander = src
		m.poll = src.Status
		m.status = src.Status()
	}
	return m
}

// Run creates the TUI program. The caller runs it and stops the bridge when
// it returns.
func Run(src Source) *tea.Program {
	return tea.NewProgram(NewModel(src, DefaultRefresh), tea.WithAltScreen())
}
