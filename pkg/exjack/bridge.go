// ABOUTME: Bridge between the control channel and the audio server client
// ABOUTME: Owns the client, output port, parameter, engine and channel
package exjack

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exjack/exjack-go/pkg/audioserver"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/engine"
	"github.com/google/uuid"
)

// Config holds bridge configuration
type Config struct {
	ClientName string
	ServerName string
	PortName   string

	// AutoConnect connects the output port to the first ConnectPorts
	// physical playback ports
	AutoConnect  bool
	ConnectPorts int

	RingCapacity     int // pushed PCM capacity in samples
	ListenerInterval time.Duration

	// OnEvent receives lifecycle and server events. Never called from the
	// process callback.
	OnEvent func(control.Event)

	// OnReport receives the async listener's periodic status
	OnReport func(control.Report)

	Debug bool
}

// DefaultConfig returns the names the host runtime expects
func DefaultConfig() Config {
	return Config{
		ClientName:       "ex_jack_client",
		ServerName:       "ex_jack_server",
		PortName:         "ex_jack_output",
		AutoConnect:      true,
		ConnectPorts:     1,
		RingCapacity:     engine.DefaultConfig().RingCapacity,
		ListenerInterval: control.DefaultListenerInterval,
	}
}

// Bridge is the single context object for one audio server client.
//
// Field access:
//   - id, config, server: immutable after New
//   - param: written by channel (under its mutex), read by the process callback
//   - engine: Process runs only on the real-time thread; SetSampleRate and
//     Stats are safe from any goroutine
//   - client, port, connections: written only while mu is held during Start
//     and Stop; the process callback reads port after activation
//   - state, counters: atomics, any goroutine
type Bridge struct {
	id     uuid.UUID
	config Config
	server audioserver.Server

	param   engine.Parameter
	engine  *engine.Engine
	channel *control.Channel

	mu          sync.Mutex
	client      audioserver.Client
	port        audioserver.Port
	connections []string

	state      atomic.Int32
	sampleRate atomic.Uint32
	bufferSize atomic.Uint32
	xruns      atomic.Uint32
	faults     atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a bridge on the given server. Nothing is opened until Start.
func New(server audioserver.Server, config Config) *Bridge {
	defaults := DefaultConfig()
	if config.ClientName == "" {
		config.ClientName = defaults.ClientName
	}
	if config.PortName == "" {
		config.PortName = defaults.PortName
	}
	if config.ConnectPorts <= 0 {
		config.ConnectPorts = 1
	}
	if config.RingCapacity <= 0 {
		config.RingCapacity = defaults.RingCapacity
	}

	b := &Bridge{
		id:     uuid.New(),
		config: config,
		server: server,
		done:   make(chan struct{}),
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.RingCapacity = config.RingCapacity
	b.engine = engine.New(&b.param, engineConfig)

	b.channel = control.New(&b.param, b.engine.External(), control.Config{
		ListenerInterval: config.ListenerInterval,
		Report:           b.report,
		OnStop: func() {
			log.Printf("Stop requested over the control channel")
			go b.Stop()
		},
		Debug: config.Debug,
	})

	return b
}

// ID returns the bridge instance ID
func (b *Bridge) ID() string {
	return b.id.String()
}

// State returns the current lifecycle state
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Channel returns the control channel writing this bridge's parameter
func (b *Bridge) Channel() *control.Channel {
	return b.channel
}

// SampleRate returns the audio server's current sample rate, 0 before Start
func (b *Bridge) SampleRate() uint32 {
	return b.sampleRate.Load()
}

// Handle applies a command through the control channel
func (b *Bridge) Handle(cmd control.Command) (control.Ack, error) {
	return b.channel.Handle(cmd)
}

// Engine returns the audio engine
func (b *Bridge) Engine() *engine.Engine {
	return b.engine
}

// Done is closed once the bridge has stopped
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Start brings the client up to ACTIVE. On failure everything opened so far
// is closed, the bridge ends CLOSED and the error is a *StartError.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(StateUninitialized), int32(StateConnecting)) {
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, b.State())
	}

	b.mu.Lock()
	err := b.startLocked(ctx)
	if err != nil {
		b.teardownLocked()
	}
	b.mu.Unlock()

	if err != nil {
		log.Printf("Bridge %s failed to start: %v", b.id, err)
		b.stopOnce.Do(func() {
			b.channel.Close()
			b.setState(StateClosed)
			close(b.done)
		})
		return err
	}

	log.Printf("Bridge %s active: %s at %dHz, %d frames per cycle",
		b.id, b.port.Name(), b.sampleRate.Load(), b.bufferSize.Load())
	b.emit(control.Event{
		Type: control.EventReady,
		A:    b.sampleRate.Load(),
		B:    b.bufferSize.Load(),
		Name: b.port.Name(),
	})
	return nil
}

func (b *Bridge) startLocked(ctx context.Context) error {
	// CONNECTING: open the client and register the callback
	client, err := b.server.Open(b.config.ClientName, b.config.ServerName)
	if err != nil {
		return startError(StateConnecting, ErrServerUnreachable, err)
	}
	b.client = client

	client.SetNotificationHandler(b.handleNotification)
	if err := client.SetProcessCallback(b.process); err != nil {
		return startError(StateConnecting, ErrCallbackRegistration, err)
	}

	if b.State() != StateConnecting {
		return &StartError{Stage: StateConnecting, Err: ErrStopped}
	}

	b.sampleRate.Store(client.SampleRate())
	b.bufferSize.Store(client.BufferSize())
	if rate := client.SampleRate(); rate > 0 {
		b.engine.SetSampleRate(int(rate))
	}

	if err := ctx.Err(); err != nil {
		return &StartError{Stage: StateConnecting, Err: err}
	}

	// PORT_READY: one mono output port
	port, err := client.RegisterOutputPort(b.config.PortName)
	if err != nil {
		return startError(StateConnecting, ErrPortRegistration, err)
	}
	b.port = port
	if !b.advance(StateConnecting, StatePortReady) {
		return &StartError{Stage: StateConnecting, Err: ErrStopped}
	}

	// Physical ports are checked before activation so a client that could
	// never be heard is never activated
	var targets []string
	if b.config.AutoConnect {
		ports, err := client.PhysicalPlaybackPorts()
		if err != nil {
			return startError(StatePortReady, ErrNoPhysicalPorts, err)
		}
		if len(ports) == 0 {
			return startError(StatePortReady, ErrNoPhysicalPorts, nil)
		}
		targets = ports[:min(len(ports), b.config.ConnectPorts)]
	}

	if err := ctx.Err(); err != nil {
		return &StartError{Stage: StatePortReady, Err: err}
	}

	// ACTIVE: activate, then connect
	if err := client.Activate(); err != nil {
		return startError(StatePortReady, ErrActivation, err)
	}

	for _, dst := range targets {
		if err := client.Connect(port.Name(), dst); err != nil {
			return startError(StatePortReady, ErrConnection, err)
		}
		b.connections = append(b.connections, dst)
		if b.config.Debug {
			log.Printf("[DEBUG] connected %s -> %s", port.Name(), dst)
		}
	}

	if !b.advance(StatePortReady, StateActive) {
		return &StartError{Stage: StatePortReady, Err: ErrStopped}
	}
	return nil
}

// Stop tears the client down. Safe to call more than once and from any
// goroutine; only the first call does anything.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.setState(StateShuttingDown)
		log.Printf("Bridge %s shutting down", b.id)

		b.channel.Close()

		b.mu.Lock()
		b.teardownLocked()
		b.mu.Unlock()

		b.setState(StateClosed)
		close(b.done)
		log.Printf("Bridge %s closed", b.id)
	})
}

// teardownLocked closes the client if one is open (must hold b.mu)
func (b *Bridge) teardownLocked() {
	if b.client == nil {
		return
	}
	if err := b.client.Close(); err != nil {
		log.Printf("Error closing audio client: %v", err)
	}
	b.client = nil
}

// advance moves from one state to the next, failing if Stop got there first
func (b *Bridge) advance(from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if b.config.Debug {
		log.Printf("[DEBUG] bridge %s -> %s", b.id, to)
	}
	return true
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	if b.config.Debug {
		log.Printf("[DEBUG] bridge %s -> %s", b.id, s)
	}
}

// process is the audio server's process callback
func (b *Bridge) process(nframes uint32) int {
	defer func() {
		if r := recover(); r != nil {
			b.faults.Add(1)
		}
	}()
	return b.engine.Process(b.port.Buffer(nframes), nframes)
}

// Status is a point-in-time view of the bridge
type Status struct {
	ID          string
	State       State
	Param       byte
	Mode        engine.Mode
	Listener    bool
	Seq         uint32
	LastOpcode  control.Opcode
	LastResult  control.Result
	Cycles      uint64
	Frames      uint64
	Faults      uint64
	XRuns       uint32
	SampleRate  uint32
	BufferSize  uint32
	Port        string
	Connections []string
	Queued      int
}

// Status returns the current bridge status
func (b *Bridge) Status() Status {
	cs := b.channel.Status()
	es := b.engine.Stats()

	s := Status{
		ID:         b.id.String(),
		State:      b.State(),
		Param:      cs.Param,
		Mode:       engine.ModeFor(cs.Param),
		Listener:   cs.Listener,
		Seq:        cs.Seq,
		LastOpcode: cs.LastOpcode,
		LastResult: cs.LastResult,
		Cycles:     es.Cycles,
		Frames:     es.Frames,
		Faults:     es.Faults + b.faults.Load(),
		XRuns:      b.xruns.Load(),
		SampleRate: b.sampleRate.Load(),
		BufferSize: b.bufferSize.Load(),
		Queued:     b.engine.External().Queued(),
	}

	b.mu.Lock()
	if b.port != nil {
		s.Port = b.port.Name()
	}
	s.Connections = append([]string(nil), b.connections...)
	b.mu.Unlock()

	return s
}

// Report returns the status frame for the current state
func (b *Bridge) Report() control.Report {
	return b.reportFor(b.channel.Status())
}

func (b *Bridge) reportFor(cs control.Status) control.Report {
	es := b.engine.Stats()
	return control.Report{
		State:    byte(b.State()),
		Param:    cs.Param,
		Listener: cs.Listener,
		Seq:      cs.Seq,
		Cycles:   es.Cycles,
		Faults:   uint32(es.Faults + b.faults.Load()),
		XRuns:    b.xruns.Load(),
	}
}

// report is the async listener's tick
func (b *Bridge) report(cs control.Status) {
	if b.config.OnReport != nil {
		b.config.OnReport(b.reportFor(cs))
	}
}
