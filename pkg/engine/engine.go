// ABOUTME: Audio callback engine
// ABOUTME: Fills one server buffer per cycle and keeps lock-free stats
package engine

import (
	"sync/atomic"

	"github.com/exjack/exjack-go/pkg/audio"
)

// Config holds engine configuration
type Config struct {
	SampleRate   int
	RingCapacity int // pushed PCM capacity in samples
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:   48000,
		RingCapacity: 48000, // about one second at 48kHz
	}
}

// Stats is a snapshot of engine counters
type Stats struct {
	Cycles     uint64
	Frames     uint64
	Faults     uint64
	Short      uint64 // cycles where the server buffer was shorter than nframes
	LastFrames uint32
	LastParam  byte
}

// Engine renders audio blocks for the process callback
type Engine struct {
	param *Parameter

	silence  Silence
	tone     *Tone
	external *ExternalPCM

	cycles     atomic.Uint64
	frames     atomic.Uint64
	faults     atomic.Uint64
	short      atomic.Uint64
	lastFrames atomic.Uint32
	lastParam  atomic.Uint32
}

// New creates an engine reading the given parameter cell
func New(param *Parameter, config Config) *Engine {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultConfig().SampleRate
	}
	if config.RingCapacity <= 0 {
		config.RingCapacity = DefaultConfig().RingCapacity
	}

	return &Engine{
		param:    param,
		tone:     NewTone(config.SampleRate),
		external: NewExternalPCM(config.RingCapacity),
	}
}

// Process fills buf with exactly nframes samples and returns the callback
// status (always 0). Called on the audio server's real-time thread.
func (e *Engine) Process(buf []audio.Sample, nframes uint32) int {
	n := int(nframes)
	if n > len(buf) {
		e.short.Add(1)
		n = len(buf)
	}
	out := buf[:n]

	p := e.param.Load()
	e.render(out, p)

	e.cycles.Add(1)
	e.frames.Add(uint64(n))
	e.lastFrames.Store(nframes)
	e.lastParam.Store(uint32(p))
	return 0
}

// render runs the selected waveform; a panic leaves a silent block
func (e *Engine) render(out []audio.Sample, p byte) {
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			e.faults.Add(1)
		}
	}()

	e.waveformFor(p).Render(out, p)
}

func (e *Engine) waveformFor(p byte) Waveform {
	switch ModeFor(p) {
	case ModeTone:
		return e.tone
	case ModeExternalPCM:
		return e.external
	default:
		return &e.silence
	}
}

// External returns the external PCM source for pushing frames and loop tables
func (e *Engine) External() *ExternalPCM {
	return e.external
}

// SetSampleRate updates rate-dependent waveforms after a server rate change
func (e *Engine) SetSampleRate(sampleRate int) {
	e.tone.SetSampleRate(sampleRate)
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Cycles:     e.cycles.Load(),
		Frames:     e.frames.Load(),
		Faults:     e.faults.Load(),
		Short:      e.short.Load(),
		LastFrames: e.lastFrames.Load(),
		LastParam:  byte(e.lastParam.Load()),
	}
}
