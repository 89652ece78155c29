// ABOUTME: Byte-oriented wire codec for commands and replies
// ABOUTME: Encodes acks, status reports and events sent back to the host
package control

import (
	"encoding/binary"
	"fmt"
)

// Outbound frame kinds (first byte of every reply frame)
const (
	FrameAck    byte = 0x01
	FrameStatus byte = 0x02
	FrameEvent  byte = 0x03
)

const (
	ackSize       = 8
	reportSize    = 24
	eventHeader   = 10
	commandHeader = 2
)

// DecodeCommand parses an inbound frame: opcode, argument, payload
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) < commandHeader {
		return Command{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	cmd := Command{Opcode: Opcode(frame[0]), Arg: frame[1]}
	if len(frame) > commandHeader {
		cmd.Payload = frame[commandHeader:]
	}
	return cmd, nil
}

// EncodeCommand builds an inbound frame, as the host runtime would send it
func EncodeCommand(cmd Command) []byte {
	frame := make([]byte, commandHeader+len(cmd.Payload))
	frame[0] = byte(cmd.Opcode)
	frame[1] = cmd.Arg
	copy(frame[commandHeader:], cmd.Payload)
	return frame
}

// EncodeAck encodes an acknowledgment frame
func EncodeAck(ack Ack) []byte {
	b := make([]byte, ackSize)
	b[0] = FrameAck
	b[1] = byte(ack.Opcode)
	b[2] = byte(ack.Result)
	b[3] = ack.Arg
	binary.BigEndian.PutUint32(b[4:], ack.Seq)
	return b
}

// DecodeAck parses an acknowledgment frame
func DecodeAck(b []byte) (Ack, error) {
	if len(b) < ackSize {
		return Ack{}, fmt.Errorf("%w: ack needs %d bytes, got %d", ErrShortFrame, ackSize, len(b))
	}
	if b[0] != FrameAck {
		return Ack{}, fmt.Errorf("%w: %#x", ErrUnknownFrame, b[0])
	}
	return Ack{
		Opcode: Opcode(b[1]),
		Result: Result(b[2]),
		Arg:    b[3],
		Seq:    binary.BigEndian.Uint32(b[4:]),
	}, nil
}

// Report is a status frame: channel status plus bridge counters
type Report struct {
	State    byte
	Param    byte
	Listener bool
	Seq      uint32
	Cycles   uint64
	Faults   uint32
	XRuns    uint32
}

// EncodeReport encodes a status frame
func EncodeReport(r Report) []byte {
	b := make([]byte, reportSize)
	b[0] = FrameStatus
	b[1] = r.State
	b[2] = r.Param
	if r.Listener {
		b[3] = 1
	}
	binary.BigEndian.PutUint32(b[4:], r.Seq)
	binary.BigEndian.PutUint64(b[8:], r.Cycles)
	binary.BigEndian.PutUint32(b[16:], r.Faults)
	binary.BigEndian.PutUint32(b[20:], r.XRuns)
	return b
}

// DecodeReport parses a status frame
func DecodeReport(b []byte) (Report, error) {
	if len(b) < reportSize {
		return Report{}, fmt.Errorf("%w: status needs %d bytes, got %d", ErrShortFrame, reportSize, len(b))
	}
	if b[0] != FrameStatus {
		return Report{}, fmt.Errorf("%w: %#x", ErrUnknownFrame, b[0])
	}
	return Report{
		State:    b[1],
		Param:    b[2],
		Listener: b[3] != 0,
		Seq:      binary.BigEndian.Uint32(b[4:]),
		Cycles:   binary.BigEndian.Uint64(b[8:]),
		Faults:   binary.BigEndian.Uint32(b[16:]),
		XRuns:    binary.BigEndian.Uint32(b[20:]),
	}, nil
}

// EventType identifies an audio server notification relayed to the host
type EventType byte

const (
	EventReady          EventType = 1 // A: sample rate, B: buffer size, Name: port
	EventShutdown       EventType = 2 // Name: reason
	EventSampleRate     EventType = 3 // A: sample rate
	EventBufferSize     EventType = 4 // A: buffer size
	EventClientRegister EventType = 5 // B: 1 registered / 0 unregistered, Name: client
	EventPortRegister   EventType = 6 // A: port id, B: 1/0, Name: port
	EventPortsConnected EventType = 7 // B: 1 connected / 0 disconnected, Name: "src>dst"
	EventXRun           EventType = 8 // A: xrun count
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventShutdown:
		return "shutdown"
	case EventSampleRate:
		return "sample_rate"
	case EventBufferSize:
		return "buffer_size"
	case EventClientRegister:
		return "client_registration"
	case EventPortRegister:
		return "port_registration"
	case EventPortsConnected:
		return "ports_connected"
	case EventXRun:
		return "xrun"
	default:
		return fmt.Sprintf("event(%d)", byte(t))
	}
}

// Event is a notification frame
type Event struct {
	Type EventType
	A    uint32
	B    uint32
	Name string
}

// EncodeEvent encodes a notification frame
func EncodeEvent(e Event) []byte {
	b := make([]byte, eventHeader+len(e.Name))
	b[0] = FrameEvent
	b[1] = byte(e.Type)
	binary.BigEndian.PutUint32(b[2:], e.A)
	binary.BigEndian.PutUint32(b[6:], e.B)
	copy(b[eventHeader:], e.Name)
	return b
}

// DecodeEvent parses a notification frame
func DecodeEvent(b []byte) (Event, error) {
	if len(b) < eventHeader {
		return Event{}, fmt.Errorf("%w: event needs %d bytes, got %d", ErrShortFrame, eventHeader, len(b))
	}
	if b[0] != FrameEvent {
		return Event{}, fmt.Errorf("%w: %#x", ErrUnknownFrame, b[0])
	}
	return Event{
		Type: EventType(b[1]),
		A:    binary.BigEndian.Uint32(b[2:]),
		B:    binary.BigEndian.Uint32(b[6:]),
		Name: string(b[eventHeader:]),
	}, nil
}

// HandleFrame decodes an inbound frame, applies it and returns the encoded ack
func (c *Channel) HandleFrame(frame []byte) ([]byte, error) {
	cmd, err := DecodeCommand(frame)
	if err != nil {
		ack, rerr := c.Reject(err)
		return EncodeAck(ack), rerr
	}
	ack, err := c.Handle(cmd)
	return EncodeAck(ack), err
}
