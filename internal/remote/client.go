// ABOUTME: Websocket remote control client
// ABOUTME: Sends command frames and Opus pushes and waits for acks
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/exjack/exjack-go/pkg/control"
	"github.com/gorilla/websocket"
)

var ErrClientClosed = errors.New("remote connection closed")

const helloTimeout = 5 * time.Second

// Client is a remote control connection. Requests are serialized; one
// request is outstanding at a time.
type Client struct {
	conn  *websocket.Conn
	hello Hello

	writeMu sync.Mutex
	reqMu   sync.Mutex

	acks   chan control.Ack
	texts  chan Message
	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

// Dial connects to a bridge's remote endpoint, e.g. ws://host:8927/exjack
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		conn:   conn,
		acks:   make(chan control.Ack, 16),
		texts:  make(chan Message, 16),
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}

	if err := c.readHello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return c, nil
}

func (c *Client) readHello() error {
	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}

	var msg struct {
		Type    string `json:"type"`
		Payload Hello  `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse hello: %w", err)
	}
	if msg.Type != "hello" {
		return fmt.Errorf("expected hello, got %s", msg.Type)
	}

	c.hello = msg.Payload
	log.Printf("Connected to %s (session %s, %s)", c.hello.Name, c.hello.SessionID, c.hello.Version)
	return nil
}

// Hello returns the server's greeting
func (c *Client) Hello() Hello {
	return c.hello
}

// Frames delivers status and event frames pushed by the server
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

func (c *Client) readMessages() {
	defer close(c.done)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if msgType == websocket.TextMessage {
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("Error unmarshaling message: %v", err)
				continue
			}
			select {
			case c.texts <- msg:
			default:
			}
			continue
		}

		if len(data) > 0 && data[0] == control.FrameAck {
			ack, err := control.DecodeAck(data)
			if err != nil {
				log.Printf("Bad ack: %v", err)
				continue
			}
			select {
			case c.acks <- ack:
			default:
				log.Printf("Dropping unexpected ack seq=%d", ack.Seq)
			}
			continue
		}

		select {
		case c.frames <- data:
		default:
		}
	}
}

// Command sends one command frame and waits for its ack
func (c *Client) Command(ctx context.Context, cmd control.Command) (control.Ack, error) {
	return c.request(ctx, control.EncodeCommand(cmd))
}

// SetParameter is shorthand for a SET_PARAMETER command
func (c *Client) SetParameter(ctx context.Context, value byte) (control.Ack, error) {
	return c.Command(ctx, control.Command{Opcode: control.OpSetParameter, Arg: value})
}

// PushOpus sends one mono 48kHz Opus packet and waits for its ack
func (c *Client) PushOpus(ctx context.Context, packet []byte) (control.Ack, error) {
	frame := make([]byte, 1+len(packet))
	frame[0] = OpusFrame
	copy(frame[1:], packet)
	return c.request(ctx, frame)
}

func (c *Client) request(ctx context.Context, frame []byte) (control.Ack, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.write(websocket.BinaryMessage, frame); err != nil {
		return control.Ack{}, err
	}

	select {
	case ack := <-c.acks:
		return ack, nil
	case <-c.done:
		return control.Ack{}, ErrClientClosed
	case <-ctx.Done():
		return control.Ack{}, ctx.Err()
	}
}

// Status asks the server for its JSON status
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	data, err := json.Marshal(Message{Type: "status"})
	if err != nil {
		return nil, err
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return nil, err
	}

	for {
		select {
		case msg := <-c.texts:
			if msg.Type != "status" {
				continue
			}
			return json.Marshal(msg.Payload)
		case <-c.done:
			return nil, ErrClientClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
