// ABOUTME: Remote control message definitions
// ABOUTME: JSON text messages and the Opus binary frame marker
package remote

import "github.com/exjack/exjack-go/pkg/control"

// OpusFrame marks a binary message carrying one mono 48kHz Opus packet.
// It is never a valid opcode, so it cannot be confused with a command frame.
const OpusFrame byte = 0xF0

// Message is a JSON text message. Binary messages carry raw command frames.
type Message struct {
	Type    string `json:"type"`
	Opcode  byte   `json:"opcode,omitempty"`
	Arg     byte   `json:"arg,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// AckMessage is the JSON form of an ack
type AckMessage struct {
	Seq    uint32 `json:"seq"`
	Opcode string `json:"opcode"`
	Arg    byte   `json:"arg"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Hello is sent to every session on connect
type Hello struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

func ackMessage(ack control.Ack, err error) AckMessage {
	m := AckMessage{
		Seq:    ack.Seq,
		Opcode: ack.Opcode.String(),
		Arg:    ack.Arg,
		Result: ack.Result.String(),
	}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}
