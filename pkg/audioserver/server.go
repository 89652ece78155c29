// ABOUTME: Audio server, client and port interfaces
// ABOUTME: Notification types shared by every backend
package audioserver

import (
	"errors"
	"fmt"

	"github.com/exjack/exjack-go/pkg/audio"
)

var (
	ErrUnknownBackend = errors.New("unknown audio server backend")
	ErrNotSupported   = errors.New("backend built without support")
	ErrClientClosed   = errors.New("client closed")
	ErrNotActive      = errors.New("client not active")
	ErrAlreadyActive  = errors.New("client already active")
	ErrNoSuchPort     = errors.New("no such port")
	ErrNoCallback     = errors.New("process callback not set")
)

// ProcessFunc is the real-time process callback. It fills every registered
// output port with nframes samples and returns 0 on success.
type ProcessFunc func(nframes uint32) int

// Server opens clients on an audio server
type Server interface {
	// Name identifies the backend
	Name() string

	// Open connects a new client. serverName may be empty for the default.
	Open(clientName, serverName string) (Client, error)
}

// Client is one connection to the audio server
type Client interface {
	// SetProcessCallback installs the process callback. Must precede Activate.
	SetProcessCallback(fn ProcessFunc) error

	// SetNotificationHandler installs the handler for server notifications.
	// It is never called from the process callback.
	SetNotificationHandler(h NotificationHandler)

	// RegisterOutputPort registers a mono 32-bit float output port
	RegisterOutputPort(name string) (Port, error)

	// PhysicalPlaybackPorts lists the hardware playback ports
	PhysicalPlaybackPorts() ([]string, error)

	Activate() error
	Connect(source, destination string) error

	SampleRate() uint32
	BufferSize() uint32

	// Close deactivates and releases the client
	Close() error
}

// Port is a registered output port
type Port interface {
	// Name is the full port name, client:port
	Name() string

	// Buffer returns the port's buffer for the current cycle. Only valid
	// inside the process callback.
	Buffer(nframes uint32) []audio.Sample
}

// NotificationKind identifies a server notification
type NotificationKind uint8

const (
	NotifyShutdown NotificationKind = iota + 1
	NotifySampleRate
	NotifyBufferSize
	NotifyClientRegistration
	NotifyPortRegistration
	NotifyPortConnect
	NotifyXRun
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyShutdown:
		return "shutdown"
	case NotifySampleRate:
		return "sample-rate"
	case NotifyBufferSize:
		return "buffer-size"
	case NotifyClientRegistration:
		return "client-registration"
	case NotifyPortRegistration:
		return "port-registration"
	case NotifyPortConnect:
		return "port-connect"
	case NotifyXRun:
		return "xrun"
	default:
		return fmt.Sprintf("notification(%d)", uint8(k))
	}
}

// Notification is one server event.
//
// A and B carry the numeric payload: the new rate or size, 1/0 for
// registered/unregistered or connected/disconnected, the xrun count.
// Name carries the client or port name, "a>b" for connections.
type Notification struct {
	Kind NotificationKind
	A    uint32
	B    uint32
	Name string
}

// NotificationHandler receives server notifications
type NotificationHandler func(Notification)

// PlaybackPortName is the physical port name for a 1-based device channel
func PlaybackPortName(channel int) string {
	return fmt.Sprintf("system:playback_%d", channel)
}
