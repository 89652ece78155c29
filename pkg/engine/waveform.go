// ABOUTME: Waveform strategies rendered by the callback engine
// ABOUTME: Silence, sine tone and external PCM variants selected by the parameter
package engine

import (
	"math"
	"sync/atomic"

	"github.com/exjack/exjack-go/pkg/audio"
)

// Waveform fills one block of samples. Render runs on the real-time thread
// and must not allocate, lock or block.
type Waveform interface {
	Render(out []audio.Sample, param byte)
}

// Silence zero-fills the block
type Silence struct{}

func (Silence) Render(out []audio.Sample, _ byte) {
	clear(out)
}

const toneAmplitude = 0.5 // 50% volume

// NoteFrequency returns the equal-tempered frequency of a MIDI note
func NoteFrequency(note byte) float64 {
	return 440.0 * math.Pow(2, (float64(note)-69)/12)
}

type toneTable [int(MaxToneNote) + 1]float64

// Tone renders a sine at the MIDI note given by the parameter.
// The phase accumulator belongs to the real-time thread.
type Tone struct {
	increments atomic.Pointer[toneTable]
	phase      float64
}

// NewTone creates a tone generator for the given sample rate
func NewTone(sampleRate int) *Tone {
	t := &Tone{}
	t.SetSampleRate(sampleRate)
	return t
}

// SetSampleRate rebuilds the phase increment table. Safe to call while the
// callback is running.
func (t *Tone) SetSampleRate(sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	table := new(toneTable)
	for note := range table {
		// Notes above Nyquist step more than a full cycle per sample
		table[note] = math.Mod(2*math.Pi*NoteFrequency(byte(note))/float64(sampleRate), 2*math.Pi)
	}
	t.increments.Store(table)
}

func (t *Tone) Render(out []audio.Sample, param byte) {
	inc := t.increments.Load()[param&MaxToneNote]
	phase := t.phase
	for i := range out {
		out[i] = audio.Sample(math.Sin(phase) * toneAmplitude)
		phase += inc
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	t.phase = phase
}

type loopTable struct {
	samples []audio.Sample
}

// ExternalPCM plays samples pushed by the host, falling back to a looped
// table and then to silence when the ring runs dry.
type ExternalPCM struct {
	ring  *RingBuffer
	table atomic.Pointer[loopTable]

	// owned by the real-time thread
	current *loopTable
	offset  int
}

// NewExternalPCM creates an external PCM source with a ring of the given capacity
func NewExternalPCM(ringCapacity int) *ExternalPCM {
	return &ExternalPCM{ring: NewRingBuffer(ringCapacity)}
}

// Push queues samples for playback and returns how many were accepted.
// Must be called from one goroutine at a time.
func (x *ExternalPCM) Push(samples []audio.Sample) int {
	return x.ring.Write(samples)
}

// SetLoop replaces the loop table. A nil or empty table disables looping.
func (x *ExternalPCM) SetLoop(samples []audio.Sample) {
	if len(samples) == 0 {
		x.table.Store(nil)
		return
	}
	x.table.Store(&loopTable{samples: samples})
}

// Queued returns the number of pushed samples not yet played
func (x *ExternalPCM) Queued() int {
	return x.ring.Available()
}

func (x *ExternalPCM) Render(out []audio.Sample, _ byte) {
	n := x.ring.Read(out)
	rest := out[n:]
	if len(rest) == 0 {
		return
	}

	t := x.table.Load()
	if t != x.current {
		x.current = t
		x.offset = 0
	}
	if t == nil {
		clear(rest)
		return
	}

	for len(rest) > 0 {
		if x.offset >= len(t.samples) {
			x.offset = 0
		}
		c := copy(rest, t.samples[x.offset:])
		x.offset += c
		rest = rest[c:]
	}
}
