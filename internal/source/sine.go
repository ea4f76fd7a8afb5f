// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"math"
)

const cancelCheckInterval = 1024

// Sine generates a phase-continuous test tone.
type Sine struct {
	amplitude float64
	step      float64 // phase increment per sample, radians
	phase     float64
}

// NewSine returns a tone of frequency Hz and peak amplitude at sampleRate.
func NewSine(frequency, amplitude, sampleRate float64) *Sine {
	return &Sine{
		amplitude: amplitude,
		step:      2 * math.Pi * frequency / sampleRate,
	}
}

// Next returns the next sample.
func (s *Sine) Next() float64 {
	v := s.amplitude * math.Sin(s.phase)
	s.phase += s.step
	if s.phase >= 2*math.Pi {
		s.phase -= 2 * math.Pi
	}
	return v
}

// Stream passes n samples to sink, stopping early if ctx is cancelled.
// It returns the number of samples delivered.
func (s *Sine) Stream(ctx context.Context, sink Sink, n int) (int, error) {
	for i := range n {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return i, err
			}
		}
		sink.Add(s.Next())
	}
	return n, nil
}
