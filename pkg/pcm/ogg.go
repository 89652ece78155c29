// ABOUTME: Ogg Vorbis decoding via jfreymuth/oggvorbis
// ABOUTME: Vorbis decodes straight to interleaved float32
package pcm

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// DecodeOgg decodes a whole Ogg Vorbis stream
func DecodeOgg(r io.Reader) (*Decoded, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	return &Decoded{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
