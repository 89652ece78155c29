// ABOUTME: Lock-free control parameter cell
// ABOUTME: Single byte shared between control writers and the real-time reader
package engine

import "sync/atomic"

// Parameter is the control value read by the callback once per cycle.
// Stores and loads are atomic; a reader observes either the previous or the
// latest complete value.
type Parameter struct {
	v atomic.Uint32
}

// Store publishes a new value
func (p *Parameter) Store(value byte) {
	p.v.Store(uint32(value))
}

// Load returns the latest published value
func (p *Parameter) Load() byte {
	return byte(p.v.Load())
}

const (
	// ParamSilence renders silence
	ParamSilence byte = 0
	// MaxToneNote is the highest parameter rendered as a tone
	MaxToneNote byte = 127
	// ParamExternalPCM renders pushed frames and the loop table
	ParamExternalPCM byte = 128
)

// Mode is the waveform selected by a parameter value
type Mode int

const (
	ModeSilence Mode = iota
	ModeTone
	ModeExternalPCM
)

// ModeFor maps a parameter value to a waveform mode
func ModeFor(param byte) Mode {
	switch {
	case param == ParamSilence:
		return ModeSilence
	case param <= MaxToneNote:
		return ModeTone
	case param == ParamExternalPCM:
		return ModeExternalPCM
	default:
		return ModeSilence
	}
}

func (m Mode) String() string {
	switch m {
	case ModeSilence:
		return "silence"
	case ModeTone:
		return "tone"
	case ModeExternalPCM:
		return "external-pcm"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode by name in JSON status
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
