package audio

import (
	"time"
)

// SampleRate is the fixed rate of every Buffer produced by this package.
const SampleRate = 16000

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one interleaved frame.
func (f Format) BytesPerFrame() int {
	return f.Channels * 2
}

// Valid reports whether the format can describe real audio.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Buffer is an immutable single-channel sample sequence at SampleRate with
// samples in [-1, 1].
type Buffer struct {
	samples []float32
}

// NewBuffer copies samples into a new Buffer.
func NewBuffer(samples []float32) Buffer {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	return Buffer{samples: cp}
}

// Len returns the number of samples.
func (b Buffer) Len() int { return len(b.samples) }

// At returns sample i.
func (b Buffer) At(i int) float32 { return b.samples[i] }

// Samples returns a copy of the sample data.
func (b Buffer) Samples() []float32 {
	cp := make([]float32, len(b.samples))
	copy(cp, b.samples)
	return cp
}

// SampleRate returns the fixed buffer rate.
func (b Buffer) SampleRate() int { return SampleRate }

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	return time.Duration(len(b.samples)) * time.Second / SampleRate
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float32 {
	var peak float32
	for _, s := range b.samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
