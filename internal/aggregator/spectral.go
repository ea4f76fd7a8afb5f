// SPDX-License-Identifier: MIT
package aggregator

import (
	"fmt"
	"sync/atomic"

	"discolights/internal/analysis"
	"discolights/internal/fft"
	"discolights/pkg/bitint"
)

// SpectralAccumulator fills a fixed-size complex buffer with windowed
// samples and runs an in-place forward FFT every time the buffer is full.
type SpectralAccumulator struct {
	buf    []complex128 // Working buffer, time domain while filling.
	window []float64    // Precomputed window coefficients, len == len(buf).
	pos    int          // Next write position, 0..len(buf)-1.
	blocks uint64       // Number of blocks transformed so far.
	plan   *fft.Plan

	enabled   atomic.Bool
	listeners listeners[SpectrumEvent]
}

// NewSpectralAccumulator validates blockLength and preallocates the buffer,
// window table and FFT plan. The accumulator starts disabled.
func NewSpectralAccumulator(blockLength int, windowType analysis.WindowFunc) (*SpectralAccumulator, error) {
	if !bitint.IsPowerOfTwo(blockLength) {
		return nil, fmt.Errorf("%w: block length must be a power of 2, got %d", ErrInvalidConfiguration, blockLength)
	}
	if windowType < analysis.Hamming || windowType > analysis.Rectangular {
		return nil, fmt.Errorf("%w: unknown window function %d", ErrInvalidConfiguration, int(windowType))
	}

	return &SpectralAccumulator{
		buf:    make([]complex128, blockLength),
		window: analysis.Coefficients(windowType, blockLength),
		plan:   fft.NewPlan(bitint.Log2(blockLength)),
	}, nil
}

// OnSample consumes one sample. It does nothing while disabled or while
// nobody is subscribed, leaving the write position untouched.
func (s *SpectralAccumulator) OnSample(v float64) {
	if !s.enabled.Load() || !s.listeners.any() {
		return
	}

	s.buf[s.pos] = complex(v*s.window[s.pos], 0)
	s.pos++
	if s.pos < len(s.buf) {
		return
	}

	s.pos = 0
	s.plan.Transform(true, s.buf)
	s.blocks++
	s.listeners.publish(SpectrumEvent{Bins: s.buf, Block: s.blocks})
}

// Subscribe registers fn for spectrum events and returns a function that
// removes it. The returned cancel func is idempotent.
func (s *SpectralAccumulator) Subscribe(fn func(SpectrumEvent)) (cancel func()) {
	return s.listeners.subscribe(fn)
}

// SetEnabled turns spectral analysis on or off from the next sample.
func (s *SpectralAccumulator) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether spectral analysis is on.
func (s *SpectralAccumulator) Enabled() bool {
	return s.enabled.Load()
}

// BlockLength returns the number of samples per FFT block.
func (s *SpectralAccumulator) BlockLength() int {
	return len(s.buf)
}

// Position returns the next write position within the current block.
// It must only be called from the producer goroutine.
func (s *SpectralAccumulator) Position() int {
	return s.pos
}

// Window returns the window coefficients applied to each block position.
// The slice is shared and must not be modified.
func (s *SpectralAccumulator) Window() []float64 {
	return s.window
}
