// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and sample conversion helpers for float32 audio
// Package audio provides the fundamental audio types shared by the bridge.
//
// Audio server ports carry mono 32-bit float samples in [-1, 1]. This
// package defines:
//   - Sample: the float32 sample type used on every port buffer
//   - Format: sample rate and block size reported by the audio server
//
// It also provides conversions used by decoders and device backends:
//   - int16 and wider integer samples → float32
//   - little-endian float32 byte packing
//
// Example:
//
//	format := audio.Format{SampleRate: 48000, BufferSize: 256}
//	s := audio.SampleFromInt16(pcm16)
package audio
