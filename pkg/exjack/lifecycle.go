// ABOUTME: Bridge lifecycle states
// ABOUTME: Ordered states from UNINITIALIZED to CLOSED
package exjack

import "fmt"

// State is a bridge lifecycle state. States only move forward.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StatePortReady
	StateActive
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConnecting:
		return "CONNECTING"
	case StatePortReady:
		return "PORT_READY"
	case StateActive:
		return "ACTIVE"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON status
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
