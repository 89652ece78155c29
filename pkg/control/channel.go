// ABOUTME: Control channel command handling
// ABOUTME: Validates opcodes, stores the parameter atomically and tracks status
package control

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/exjack/exjack-go/pkg/engine"
)

// DefaultListenerInterval is the status report period of the async listener
const DefaultListenerInterval = time.Second

// FrameSink accepts pushed PCM samples; engine.ExternalPCM implements it
type FrameSink interface {
	Push(samples []audio.Sample) int
}

// Config holds channel configuration
type Config struct {
	ListenerInterval time.Duration

	// Report receives a status snapshot on every listener tick
	Report func(Status)

	// OnStop is called, outside the channel lock, for every STOP command
	OnStop func()

	Debug bool
}

// Channel is the write side of the control parameter
type Channel struct {
	config Config
	param  *engine.Parameter
	frames FrameSink

	mu      sync.Mutex
	status  Status
	closed  bool
	scratch []audio.Sample

	listenerCancel context.CancelFunc
	listenerDone   chan struct{}
}

// New creates a control channel writing to param and pushing frames to frames.
// frames may be nil, in which case PUSH_FRAMES is unsupported.
func New(param *engine.Parameter, frames FrameSink, config Config) *Channel {
	if config.ListenerInterval <= 0 {
		config.ListenerInterval = DefaultListenerInterval
	}

	return &Channel{
		config: config,
		param:  param,
		frames: frames,
	}
}

// Handle applies one command and returns its acknowledgment.
// Unsupported or malformed commands leave the parameter untouched and return
// an error wrapping ErrUnsupportedCommand or ErrMalformedCommand.
func (c *Channel) Handle(cmd Command) (Ack, error) {
	c.mu.Lock()

	c.status.Seq++
	ack := Ack{Seq: c.status.Seq, Opcode: cmd.Opcode, Arg: cmd.Arg}

	var err error
	stop := false

	switch {
	case c.closed:
		ack.Result = ResultClosed
		err = ErrChannelClosed

	case !cmd.Opcode.Valid():
		ack.Result = ResultUnsupported
		err = fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Opcode)

	case cmd.Opcode == OpStartAsyncListener:
		c.startListenerLocked()

	case cmd.Opcode == OpSetParameter:
		c.param.Store(cmd.Arg)

	case cmd.Opcode == OpPushFrames && c.frames != nil:
		ack.Result, err = c.pushLocked(cmd.Payload)

	case cmd.Opcode == OpStop:
		stop = true

	default:
		// PUSH_FRAMES without a frame sink
		ack.Result = ResultUnsupported
		err = fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Opcode)
	}

	c.status.LastOpcode = cmd.Opcode
	c.status.LastArg = cmd.Arg
	c.status.LastResult = ack.Result
	c.mu.Unlock()

	if c.config.Debug {
		log.Printf("[DEBUG] control: seq=%d %s arg=%d -> %s", ack.Seq, cmd.Opcode, cmd.Arg, ack.Result)
	}

	if stop && c.config.OnStop != nil {
		c.config.OnStop()
	}

	return ack, err
}

// Reject records a frame that could not be decoded and returns its ack
func (c *Channel) Reject(cause error) (Ack, error) {
	c.mu.Lock()
	c.status.Seq++
	ack := Ack{Seq: c.status.Seq, Result: ResultMalformed}
	c.status.LastOpcode = 0
	c.status.LastArg = 0
	c.status.LastResult = ResultMalformed
	c.mu.Unlock()

	return ack, fmt.Errorf("%w: %v", ErrMalformedCommand, cause)
}

// pushLocked converts the payload and queues it (must hold c.mu)
func (c *Channel) pushLocked(payload []byte) (Result, error) {
	if len(payload)%audio.BytesPerSample != 0 {
		return ResultMalformed, fmt.Errorf("%w: payload of %d bytes is not whole float32 samples",
			ErrMalformedCommand, len(payload))
	}

	n := len(payload) / audio.BytesPerSample
	if cap(c.scratch) < n {
		c.scratch = make([]audio.Sample, n)
	}
	samples := c.scratch[:n]
	audio.Float32FromLE(samples, payload)

	if accepted := c.frames.Push(samples); accepted < n {
		return ResultOverflow, fmt.Errorf("%w: %d of %d", ErrFramesDropped, n-accepted, n)
	}
	return ResultOK, nil
}

// Status returns the current channel status
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status
	s.Param = c.param.Load()
	s.Listener = c.listenerCancel != nil
	return s
}

// Close stops the listener and rejects further commands. Safe to call twice.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	done := c.stopListenerLocked()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}
