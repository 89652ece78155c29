// ABOUTME: Audio callback engine package
// ABOUTME: Renders one process cycle from a lock-free control parameter
// Package engine implements the audio callback engine.
//
// The audio server calls Engine.Process from its real-time thread once per
// block. Process loads the control Parameter once, picks a Waveform for it
// and fills exactly nframes samples. It never allocates, locks, blocks or
// performs I/O, and a fault inside a waveform degrades to silence.
//
// Parameter values:
//
//	0         silence
//	1..127    sine tone at that MIDI note (69 = 440 Hz)
//	128       external PCM (pushed frames, then the loop table)
//	129..255  reserved, silence
//
// Example:
//
//	var param engine.Parameter
//	eng := engine.New(&param, engine.DefaultConfig())
//	param.Store(69)
//	eng.Process(buf, uint32(len(buf)))
package engine
