// ABOUTME: Control channel error definitions
// ABOUTME: Sentinel errors returned by command handling and decoding
package control

import "errors"

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrMalformedCommand   = errors.New("malformed command")
	ErrFramesDropped      = errors.New("frame queue full, samples dropped")
	ErrChannelClosed      = errors.New("control channel closed")
	ErrShortFrame         = errors.New("frame too short")
	ErrUnknownFrame       = errors.New("unknown frame kind")
)
