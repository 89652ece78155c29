// ABOUTME: AIFF decoding via go-audio/aiff
// ABOUTME: Reads integer PCM in blocks and converts it to float samples
package pcm

import (
	"fmt"
	"io"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

const aiffBlock = 4096

// DecodeAIFF decodes a whole AIFF stream
func DecodeAIFF(r io.ReadSeeker) (*Decoded, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid AIFF file")
	}

	dec.ReadInfo()
	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("AIFF file has no format chunk")
	}
	bitDepth := int(dec.BitDepth)

	buf := &goaudio.IntBuffer{
		Data:   make([]int, aiffBlock),
		Format: format,
	}

	var samples []audio.Sample
	for {
		n, err := dec.PCMBuffer(buf)
		for _, v := range buf.Data[:n] {
			samples = append(samples, audio.SampleFromInt32(int32(v), bitDepth))
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode AIFF: %w", err)
		}
	}

	return &Decoded{
		Samples:    samples,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
	}, nil
}
