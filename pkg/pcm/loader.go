// ABOUTME: Audio file loader for loop tables
// ABOUTME: Picks a decoder by extension, downmixes to mono and resamples
package pcm

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/exjack/exjack-go/pkg/audio/resample"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmpty             = errors.New("no audio samples")
)

// Decoded is interleaved audio as it came out of a decoder
type Decoded struct {
	Samples    []audio.Sample
	SampleRate int
	Channels   int
}

// Clip is a mono loop table ready for the external PCM waveform
type Clip struct {
	Name       string
	Samples    []audio.Sample
	SampleRate int

	// source format
	SourceRate     int
	SourceChannels int
}

// Duration returns the clip length in seconds
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Extensions lists the supported file extensions
var Extensions = []string{".wav", ".aiff", ".mp3", ".flac", ".ogg"}

// Load decodes a file and converts it to mono at sampleRate
func Load(path string, sampleRate int) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	decoded, err := Decode(f, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	clip := Convert(decoded, sampleRate)
	clip.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	log.Printf("Loaded %s: %d Hz, %d channels -> %d mono samples at %d Hz (%.2fs)",
		clip.Name, clip.SourceRate, clip.SourceChannels, len(clip.Samples), clip.SampleRate, clip.Duration())
	return clip, nil
}

// Decode runs the decoder for a file extension
func Decode(r io.ReadSeeker, ext string) (*Decoded, error) {
	var (
		d   *Decoded
		err error
	)

	switch ext {
	case ".wav":
		d, err = DecodeWAV(r)
	case ".aiff", ".aif":
		d, err = DecodeAIFF(r)
	case ".mp3":
		d, err = DecodeMP3(r)
	case ".flac":
		d, err = DecodeFLAC(r)
	case ".ogg", ".oga":
		d, err = DecodeOgg(r)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(Extensions, ", "))
	}
	if err != nil {
		return nil, err
	}
	if len(d.Samples) == 0 || d.Channels <= 0 {
		return nil, ErrEmpty
	}
	return d, nil
}

// Convert downmixes decoded audio to mono and resamples it to sampleRate
func Convert(d *Decoded, sampleRate int) *Clip {
	mono := Downmix(d.Samples, d.Channels)
	if sampleRate <= 0 {
		sampleRate = d.SampleRate
	}
	return &Clip{
		Samples:        resample.Convert(mono, d.SampleRate, sampleRate, 1),
		SampleRate:     sampleRate,
		SourceRate:     d.SampleRate,
		SourceChannels: d.Channels,
	}
}

// Downmix averages interleaved channels into one. Mono input is returned
// as is.
func Downmix(samples []audio.Sample, channels int) []audio.Sample {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]audio.Sample, frames)
	for i := range mono {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
