// ABOUTME: MP3 decoding via go-mp3
// ABOUTME: go-mp3 always yields 16-bit little-endian stereo
package pcm

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes a whole MP3 stream
func DecodeMP3(r io.Reader) (*Decoded, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to read MP3: %w", err)
	}

	samples := make([]audio.Sample, len(raw)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return &Decoded{
		Samples:    samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}
