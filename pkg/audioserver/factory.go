// ABOUTME: Backend selection by name
// ABOUTME: Maps the -backend flag onto a Server implementation
package audioserver

import (
	"fmt"
)

// Backends lists the accepted backend names
var Backends = []string{"jack", "malgo", "oto", "portaudio", "loopback"}

// New returns the named backend. device configures the hardware backends and
// is ignored by jack and loopback.
func New(backend string, device DeviceConfig) (Server, error) {
	switch backend {
	case "jack":
		return NewJack(), nil
	case "malgo":
		return NewMalgo(device), nil
	case "oto":
		return NewOto(device), nil
	case "portaudio":
		return NewPortAudio(device), nil
	case "loopback":
		config := DefaultLoopbackConfig()
		config.Clocked = true
		if device.SampleRate > 0 {
			config.SampleRate = uint32(device.SampleRate)
		}
		if device.BufferSize > 0 {
			config.BufferSize = uint32(device.BufferSize)
		}
		return NewLoopback(config), nil
	default:
		return nil, fmt.Errorf("%w: %q (choose one of %v)", ErrUnknownBackend, backend, Backends)
	}
}
