//go:build !jack

// ABOUTME: JACK backend stub when go-jack is not built in
// ABOUTME: Every Open fails with ErrNotSupported
package audioserver

import (
	"fmt"
)

// Jack backend (stub)
type Jack struct{}

// NewJack creates a JACK server
func NewJack() *Jack {
	return &Jack{}
}

// Name identifies the backend
func (j *Jack) Name() string {
	return "jack"
}

// Open fails: JACK support not enabled
func (j *Jack) Open(clientName, serverName string) (Client, error) {
	return nil, fmt.Errorf("%w: jack (build with -tags jack)", ErrNotSupported)
}
