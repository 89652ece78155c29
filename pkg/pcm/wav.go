// ABOUTME: WAV decoding via go-audio/wav
// ABOUTME: Converts integer PCM of any bit depth to float samples
package pcm

import (
	"fmt"
	"io"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV decodes a whole WAV stream
func DecodeWAV(r io.ReadSeeker) (*Decoded, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	bitDepth := int(d.BitDepth)
	samples := make([]audio.Sample, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = audio.SampleFromInt32(int32(v), bitDepth)
	}

	return &Decoded{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}
