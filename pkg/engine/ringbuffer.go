// ABOUTME: Lock-free single-producer single-consumer sample ring
// ABOUTME: Carries pushed PCM frames from a control goroutine to the callback
package engine

import (
	"sync/atomic"

	"github.com/exjack/exjack-go/pkg/audio"
)

// RingBuffer is a circular sample buffer with one writer and one reader.
// Positions grow monotonically; the capacity is rounded up to a power of two.
type RingBuffer struct {
	buffer   []audio.Sample
	mask     uint64
	readPos  atomic.Uint64
	writePos atomic.Uint64
}

// NewRingBuffer creates a ring buffer with at least the given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &RingBuffer{
		buffer: make([]audio.Sample, size),
		mask:   uint64(size - 1),
	}
}

// Write adds samples to the ring and returns how many fit. Producer only.
func (rb *RingBuffer) Write(samples []audio.Sample) int {
	w := rb.writePos.Load()
	r := rb.readPos.Load()
	free := uint64(len(rb.buffer)) - (w - r)

	n := uint64(len(samples))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		rb.buffer[(w+i)&rb.mask] = samples[i]
	}
	rb.writePos.Store(w + n)
	return int(n)
}

// Read moves up to len(dst) samples out of the ring and returns the count.
// Consumer only. Does not touch dst beyond the returned count.
func (rb *RingBuffer) Read(dst []audio.Sample) int {
	r := rb.readPos.Load()
	w := rb.writePos.Load()
	avail := w - r

	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = rb.buffer[(r+i)&rb.mask]
	}
	rb.readPos.Store(r + n)
	return int(n)
}

// Available returns the number of samples waiting to be read
func (rb *RingBuffer) Available() int {
	return int(rb.writePos.Load() - rb.readPos.Load())
}

// Free returns the number of samples that can be written
func (rb *RingBuffer) Free() int {
	return len(rb.buffer) - rb.Available()
}

// Cap returns the ring capacity in samples
func (rb *RingBuffer) Cap() int {
	return len(rb.buffer)
}
