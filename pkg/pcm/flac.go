// ABOUTME: FLAC decoding via mewkiz/flac
// ABOUTME: Interleaves subframes and scales by the stream bit depth
package pcm

import (
	"fmt"
	"io"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// DecodeFLAC decodes a whole FLAC stream
func DecodeFLAC(r io.Reader) (*Decoded, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)

	samples := make([]audio.Sample, 0, int(info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, audio.SampleFromInt32(frame.Subframes[ch].Samples[i], bitDepth))
			}
		}
	}

	return &Decoded{
		Samples:    samples,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
	}, nil
}
