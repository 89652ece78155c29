// ABOUTME: In-memory loopback audio server
// ABOUTME: Driven by explicit cycles in tests, or by a real-time clock when run headless
package audioserver

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/exjack/exjack-go/pkg/audio"
)

// LoopbackConfig configures the loopback server. The Fail* errors are
// returned from the matching client operation, simulating server failures.
type LoopbackConfig struct {
	SampleRate    uint32
	BufferSize    uint32
	PhysicalPorts []string

	// Clocked runs a cycle every BufferSize/SampleRate once a client is
	// activated, until it is closed
	Clocked bool

	FailOpen         error
	FailCallback     error
	FailPortRegister error
	FailActivate     error
	FailConnect      error
}

// DefaultLoopbackConfig returns a 48kHz server with two playback ports
func DefaultLoopbackConfig() LoopbackConfig {
	return LoopbackConfig{
		SampleRate:    48000,
		BufferSize:    256,
		PhysicalPorts: []string{PlaybackPortName(1), PlaybackPortName(2)},
	}
}

// Loopback is an audio server that runs cycles when asked to, or on its own
// clock when Clocked is set
type Loopback struct {
	config LoopbackConfig

	mu      sync.Mutex
	clients []*LoopbackClient
}

// NewLoopback creates a loopback server
func NewLoopback(config LoopbackConfig) *Loopback {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.BufferSize == 0 {
		config.BufferSize = 256
	}
	return &Loopback{config: config}
}

// Name identifies the backend
func (l *Loopback) Name() string {
	return "loopback"
}

// Open connects a new loopback client
func (l *Loopback) Open(clientName, serverName string) (Client, error) {
	if l.config.FailOpen != nil {
		return nil, l.config.FailOpen
	}

	c := &LoopbackClient{
		server:     l,
		name:       clientName,
		serverName: serverName,
		sampleRate: l.config.SampleRate,
		bufferSize: l.config.BufferSize,
	}

	l.mu.Lock()
	l.clients = append(l.clients, c)
	l.mu.Unlock()

	return c, nil
}

// LastClient returns the most recently opened client, or nil
func (l *Loopback) LastClient() *LoopbackClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.clients) == 0 {
		return nil
	}
	return l.clients[len(l.clients)-1]
}

// Connection is one port-to-port connection
type Connection struct {
	Source      string
	Destination string
}

// LoopbackClient is a client of the loopback server
type LoopbackClient struct {
	server     *Loopback
	name       string
	serverName string

	mu          sync.Mutex
	process     ProcessFunc
	notify      NotificationHandler
	ports       []*loopbackPort
	connections []Connection
	sampleRate  uint32
	bufferSize  uint32
	activated   bool
	closed      bool
	closeCount  int
	stopClock   chan struct{}

	// cycleMu serializes cycles, standing in for the server's single RT thread
	cycleMu sync.Mutex
	cycles  uint64
}

// ClientName returns the name the client was opened with
func (c *LoopbackClient) ClientName() string {
	return c.name
}

// ServerName returns the server name the client was opened with
func (c *LoopbackClient) ServerName() string {
	return c.serverName
}

// SetProcessCallback installs the process callback
func (c *LoopbackClient) SetProcessCallback(fn ProcessFunc) error {
	if err := c.server.config.FailCallback; err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.process = fn
	return nil
}

// SetNotificationHandler installs the notification handler
func (c *LoopbackClient) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	c.notify = h
	c.mu.Unlock()
}

// RegisterOutputPort registers an output port named client:name
func (c *LoopbackClient) RegisterOutputPort(name string) (Port, error) {
	if err := c.server.config.FailPortRegister; err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	p := &loopbackPort{
		name: c.name + ":" + name,
		buf:  make([]float32, c.bufferSize),
	}
	c.ports = append(c.ports, p)
	c.mu.Unlock()

	c.emit(Notification{Kind: NotifyPortRegistration, A: 1, Name: p.name})
	return p, nil
}

// PhysicalPlaybackPorts lists the configured physical ports
func (c *LoopbackClient) PhysicalPlaybackPorts() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return append([]string(nil), c.server.config.PhysicalPorts...), nil
}

// Activate lets Cycle run the process callback
func (c *LoopbackClient) Activate() error {
	if err := c.server.config.FailActivate; err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClientClosed
	case c.activated:
		return ErrAlreadyActive
	case c.process == nil:
		return ErrNoCallback
	}
	c.activated = true

	if c.server.config.Clocked {
		c.stopClock = make(chan struct{})
		go c.runClock(c.stopClock)
	}
	return nil
}

// runClock drives cycles in real time until stop is closed
func (c *LoopbackClient) runClock(stop <-chan struct{}) {
	format := audio.Format{SampleRate: int(c.SampleRate()), BufferSize: int(c.BufferSize())}
	period := format.BlockDuration()
	if period <= 0 {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := c.Cycle(c.BufferSize()); err != nil {
				return
			}
		}
	}
}

// Connect records a connection from one of this client's ports to a
// physical port
func (c *LoopbackClient) Connect(source, destination string) error {
	if err := c.server.config.FailConnect; err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.portLocked(source) == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchPort, source)
	}
	if !slices.Contains(c.server.config.PhysicalPorts, destination) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchPort, destination)
	}
	c.connections = append(c.connections, Connection{Source: source, Destination: destination})
	c.mu.Unlock()

	c.emit(Notification{Kind: NotifyPortConnect, A: 1, Name: source + ">" + destination})
	return nil
}

// SampleRate returns the current sample rate
func (c *LoopbackClient) SampleRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// BufferSize returns the current buffer size
func (c *LoopbackClient) BufferSize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufferSize
}

// Close deactivates the client. Closing twice is an error, which lets tests
// check that teardown happens exactly once.
func (c *LoopbackClient) Close() error {
	c.mu.Lock()
	c.closeCount++
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	c.activated = false
	if c.stopClock != nil {
		close(c.stopClock)
	}
	c.mu.Unlock()

	// wait out an in-flight cycle
	c.cycleMu.Lock()
	c.cycleMu.Unlock()
	return nil
}

// Cycle runs one process cycle of nframes and returns the callback status.
// Port buffers are grown here, outside the callback.
func (c *LoopbackClient) Cycle(nframes uint32) (int, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.mu.Lock()
	if !c.activated {
		c.mu.Unlock()
		return 0, ErrNotActive
	}
	process := c.process
	for _, p := range c.ports {
		if uint32(len(p.buf)) < nframes {
			p.buf = make([]float32, nframes)
		}
	}
	c.mu.Unlock()

	status := process(nframes)
	c.cycles++
	return status, nil
}

// Cycles returns the number of cycles run
func (c *LoopbackClient) Cycles() uint64 {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	return c.cycles
}

// Output returns a copy of the first nframes samples of the named port's
// buffer from the last cycle
func (c *LoopbackClient) Output(port string, nframes uint32) ([]float32, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.mu.Lock()
	p := c.portLocked(port)
	c.mu.Unlock()
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPort, port)
	}
	if uint32(len(p.buf)) < nframes {
		nframes = uint32(len(p.buf))
	}
	return append([]float32(nil), p.buf[:nframes]...), nil
}

// Connections returns the recorded connections
func (c *LoopbackClient) Connections() []Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Connection(nil), c.connections...)
}

// Activated reports whether the client was activated and not yet closed
func (c *LoopbackClient) Activated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

// Closed reports whether the client was closed
func (c *LoopbackClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCount returns how many times Close was called
func (c *LoopbackClient) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// SetSampleRate changes the sample rate and notifies the client
func (c *LoopbackClient) SetSampleRate(rate uint32) {
	c.mu.Lock()
	c.sampleRate = rate
	c.mu.Unlock()
	c.emit(Notification{Kind: NotifySampleRate, A: rate})
}

// SetBufferSize changes the buffer size and notifies the client
func (c *LoopbackClient) SetBufferSize(size uint32) {
	c.mu.Lock()
	c.bufferSize = size
	c.mu.Unlock()
	c.emit(Notification{Kind: NotifyBufferSize, A: size})
}

// Notify delivers an arbitrary notification, such as an xrun or shutdown
func (c *LoopbackClient) Notify(n Notification) {
	c.emit(n)
}

func (c *LoopbackClient) emit(n Notification) {
	c.mu.Lock()
	h := c.notify
	c.mu.Unlock()
	if h != nil {
		h(n)
	}
}

func (c *LoopbackClient) portLocked(name string) *loopbackPort {
	for _, p := range c.ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

type loopbackPort struct {
	name string
	buf  []float32
}

func (p *loopbackPort) Name() string {
	return p.name
}

func (p *loopbackPort) Buffer(nframes uint32) []float32 {
	return p.buf[:nframes]
}
