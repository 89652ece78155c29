// ABOUTME: Audio type definitions
// ABOUTME: Defines the port sample type, stream format and sample conversions
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Sample is one mono float32 sample in [-1, 1], the port buffer element type
type Sample = float32

// BytesPerSample is the size of a packed float32 sample
const BytesPerSample = 4

// Format describes the stream format of an audio server client
type Format struct {
	SampleRate int
	BufferSize int // frames per process cycle
}

// BlockDuration returns the wall-clock length of one process cycle
func (f Format) BlockDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.BufferSize) * time.Second / time.Duration(f.SampleRate)
}

// SampleFromInt16 converts an int16 sample to float32 in [-1, 1)
func SampleFromInt16(sample int16) Sample {
	return Sample(sample) / 32768.0
}

// SampleFromInt32 converts a signed integer sample of the given bit depth to float32
func SampleFromInt32(sample int32, bitDepth int) Sample {
	if bitDepth <= 0 || bitDepth > 32 {
		return 0
	}
	return Sample(float64(sample) / float64(int64(1)<<(bitDepth-1)))
}

// PutFloat32LE packs samples as little-endian float32 into dst.
// Returns the number of bytes written.
func PutFloat32LE(dst []byte, samples []Sample) int {
	n := 0
	for _, s := range samples {
		if n+BytesPerSample > len(dst) {
			break
		}
		binary.LittleEndian.PutUint32(dst[n:], math.Float32bits(s))
		n += BytesPerSample
	}
	return n
}

// Float32FromLE unpacks little-endian float32 samples from src into dst.
// Returns the number of samples written.
func Float32FromLE(dst []Sample, src []byte) int {
	n := 0
	for n < len(dst) && (n+1)*BytesPerSample <= len(src) {
		dst[n] = math.Float32frombits(binary.LittleEndian.Uint32(src[n*BytesPerSample:]))
		n++
	}
	return n
}
