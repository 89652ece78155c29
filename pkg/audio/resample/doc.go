// ABOUTME: Sample rate conversion for pushed and loaded PCM
// ABOUTME: Brings mono float32 audio to the audio server's rate
// Package resample converts mono float32 audio to the audio server's rate
// by linear interpolation.
//
// Convert handles a whole clip in one call, as when a loop file is decoded
// at its own rate. A Resampler keeps its fractional position between calls,
// so a stream of 20ms Opus packets at 48kHz can be brought to a 44.1kHz
// server without clicks at packet boundaries.
//
// Example:
//
//	loop := resample.Convert(decoded, 44100, serverRate, 1)
//
//	rs := resample.New(48000, serverRate, 1)
//	out := make([]audio.Sample, rs.OutputSamplesNeeded(len(packet)))
//	out = out[:rs.Resample(packet, out)]
package resample
