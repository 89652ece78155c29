//go:build !portaudio

// ABOUTME: PortAudio backend stub when the library is not built in
// ABOUTME: Every Open fails with ErrNotSupported
package audioserver

import (
	"fmt"
)

// PortAudio backend (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio server
func NewPortAudio(config DeviceConfig) *PortAudio {
	return &PortAudio{}
}

// Name identifies the backend
func (p *PortAudio) Name() string {
	return "portaudio"
}

// Open fails: PortAudio support not enabled
func (p *PortAudio) Open(clientName, serverName string) (Client, error) {
	return nil, fmt.Errorf("%w: portaudio (build with -tags portaudio)", ErrNotSupported)
}
