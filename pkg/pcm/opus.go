// ABOUTME: Mono Opus packet encoder and decoder
// ABOUTME: Compressed PCM pushes over the remote control link
package pcm

import (
	"fmt"

	"github.com/exjack/exjack-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// OpusSampleRate is the rate of every Opus packet on the wire
	OpusSampleRate = 48000

	// OpusFrameSize is 20ms of mono audio at OpusSampleRate
	OpusFrameSize = OpusSampleRate / 50

	maxOpusPacket = 4000
	maxOpusFrame  = 5760 // 120ms, the largest Opus frame
)

// OpusEncoder packs mono samples into 20ms Opus packets
type OpusEncoder struct {
	encoder *opus.Encoder
	pending []audio.Sample
	packet  []byte
}

// NewOpusEncoder creates an encoder for mono audio at OpusSampleRate
func NewOpusEncoder() (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(OpusSampleRate, 1, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder: encoder,
		pending: make([]audio.Sample, 0, OpusFrameSize),
		packet:  make([]byte, maxOpusPacket),
	}, nil
}

// Encode buffers samples and returns one packet per complete 20ms frame
func (e *OpusEncoder) Encode(samples []audio.Sample) ([][]byte, error) {
	var packets [][]byte
	for len(samples) > 0 {
		n := min(OpusFrameSize-len(e.pending), len(samples))
		e.pending = append(e.pending, samples[:n]...)
		samples = samples[n:]

		if len(e.pending) == OpusFrameSize {
			packet, err := e.encodePending()
			if err != nil {
				return packets, err
			}
			packets = append(packets, packet)
		}
	}
	return packets, nil
}

// Flush pads the last partial frame with silence and encodes it.
// Returns nil when nothing is pending.
func (e *OpusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	for len(e.pending) < OpusFrameSize {
		e.pending = append(e.pending, 0)
	}
	return e.encodePending()
}

func (e *OpusEncoder) encodePending() ([]byte, error) {
	n, err := e.encoder.EncodeFloat32(e.pending, e.packet)
	e.pending = e.pending[:0]
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}
	return append([]byte(nil), e.packet[:n]...), nil
}

// OpusDecoder unpacks mono Opus packets
type OpusDecoder struct {
	decoder *opus.Decoder
	pcm     []float32
}

// NewOpusDecoder creates a decoder for mono audio at OpusSampleRate
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(OpusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		pcm:     make([]float32, maxOpusFrame),
	}, nil
}

// Decode returns the packet's samples. The slice is reused by the next call.
func (d *OpusDecoder) Decode(packet []byte) ([]audio.Sample, error) {
	n, err := d.decoder.DecodeFloat32(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	return d.pcm[:n], nil
}
