// ABOUTME: Packet-framed host port reader and writer
// ABOUTME: Reads command frames, dispatches them and writes replies
package hostport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// DefaultPacketSize matches an Erlang port opened with {packet, 2}
const DefaultPacketSize = 2

var (
	ErrInvalidPacketSize = errors.New("packet size must be 1, 2 or 4")
	ErrFrameTooLarge     = errors.New("frame exceeds packet header capacity")
)

// Handler processes one inbound frame and returns the reply frame.
// control.Channel implements it.
type Handler interface {
	HandleFrame(frame []byte) ([]byte, error)
}

// Config holds port configuration
type Config struct {
	PacketSize int // length header size in bytes
	Debug      bool
}

// Port is a framed duplex connection to the host runtime
type Port struct {
	config Config
	r      *bufio.Reader
	w      io.Writer
	wmu    sync.Mutex
	header []byte
	limit  uint64
}

// New creates a port reading frames from r and writing frames to w
func New(r io.Reader, w io.Writer, config Config) (*Port, error) {
	if config.PacketSize == 0 {
		config.PacketSize = DefaultPacketSize
	}

	var limit uint64
	switch config.PacketSize {
	case 1:
		limit = 0xFF
	case 2:
		limit = 0xFFFF
	case 4:
		limit = 0xFFFFFFFF
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketSize, config.PacketSize)
	}

	return &Port{
		config: config,
		r:      bufio.NewReader(r),
		w:      w,
		header: make([]byte, config.PacketSize),
		limit:  limit,
	}, nil
}

// ReadFrame reads one packet. Returns io.EOF when the host closed the port
// between packets and io.ErrUnexpectedEOF when it closed mid-packet.
func (p *Port) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(p.r, p.header); err != nil {
		return nil, err
	}

	n := p.decodeLength(p.header)
	frame := make([]byte, n)
	if _, err := io.ReadFull(p.r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes one packet. Safe for concurrent use.
func (p *Port) WriteFrame(frame []byte) error {
	if uint64(len(frame)) > p.limit {
		return fmt.Errorf("%w: %d bytes with %d-byte header", ErrFrameTooLarge, len(frame), p.config.PacketSize)
	}

	buf := make([]byte, p.config.PacketSize+len(frame))
	p.encodeLength(buf, len(frame))
	copy(buf[p.config.PacketSize:], frame)

	p.wmu.Lock()
	defer p.wmu.Unlock()

	if _, err := p.w.Write(buf); err != nil {
		return fmt.Errorf("port write failed: %w", err)
	}
	return nil
}

// Serve reads frames until the host closes the port, passing each to h and
// writing its reply. Command errors are logged, not fatal. Returns nil when
// the host closed the port cleanly.
func (p *Port) Serve(h Handler) error {
	for {
		frame, err := p.ReadFrame()
		if err != nil {
			if err == io.EOF {
				log.Printf("Host closed the port")
				return nil
			}
			return fmt.Errorf("port read failed: %w", err)
		}

		if p.config.Debug {
			log.Printf("[DEBUG] port: received %d byte frame", len(frame))
		}

		reply, herr := h.HandleFrame(frame)
		if herr != nil {
			log.Printf("Command error: %v", herr)
		}
		if reply == nil {
			continue
		}
		if err := p.WriteFrame(reply); err != nil {
			return err
		}
	}
}

func (p *Port) decodeLength(h []byte) uint32 {
	switch len(h) {
	case 1:
		return uint32(h[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(h))
	default:
		return binary.BigEndian.Uint32(h)
	}
}

func (p *Port) encodeLength(dst []byte, n int) {
	switch p.config.PacketSize {
	case 1:
		dst[0] = byte(n)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(n))
	default:
		binary.BigEndian.PutUint32(dst, uint32(n))
	}
}
