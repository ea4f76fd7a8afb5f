// SPDX-License-Identifier: MIT
package fft

import (
	"discolights/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxLog2Length bounds the plans we are willing to build, 2^30 complex128
// values is already 16GiB of buffer.
const maxLog2Length = 30

// Plan holds the precomputed twiddle factors and scratch space for an
// in-place complex FFT of one fixed power-of-two length.
//
// A Plan is not safe for concurrent use, each producer owns its own.
type Plan struct {
	n     int
	m     int
	scale float64           // 1/n, applied on the inverse transform
	cfft  *fourier.CmplxFFT // nil when n == 1
}

// NewPlan creates a plan for buffers of length 1<<log2Length.
// It panics if log2Length is out of range.
func NewPlan(log2Length int) *Plan {
	if log2Length < 0 || log2Length > maxLog2Length {
		panic("fft: log2 length out of range")
	}
	n := 1 << log2Length
	p := &Plan{
		n:     n,
		m:     log2Length,
		scale: 1 / float64(n),
	}
	// A single point DFT is the identity.
	if n > 1 {
		p.cfft = fourier.NewCmplxFFT(n)
	}
	return p
}

// Len returns the transform length.
func (p *Plan) Len() int { return p.n }

// Log2Len returns log2 of the transform length.
func (p *Plan) Log2Len() int { return p.m }

// Transform computes the discrete Fourier transform of buf in place when
// forward is true, and the inverse transform otherwise. Bins are in standard
// order: bin 0 is DC, followed by increasing positive frequencies up to
// Nyquist at n/2 and the conjugate-symmetric negative half.
//
// The forward transform is unnormalised, a constant block of value c yields
// c*n in bin 0. The inverse divides by n so that a forward transform followed
// by an inverse one restores the input.
//
// It panics if len(buf) does not match the plan. Transform does not allocate.
func (p *Plan) Transform(forward bool, buf []complex128) {
	if len(buf) != p.n {
		panic("fft: buffer length does not match plan")
	}
	if p.cfft == nil {
		return
	}
	if forward {
		p.cfft.Coefficients(buf, buf)
		return
	}
	p.cfft.Sequence(buf, buf)
	for i := range buf {
		buf[i] *= complex(p.scale, 0)
	}
}

// Transform is the one-shot form of Plan.Transform. It requires
// len(buf) == 1<<log2Length and panics otherwise. A fresh plan is built on
// every call, so hot paths should hold a Plan instead.
func Transform(forward bool, log2Length int, buf []complex128) {
	if log2Length < 0 || log2Length > maxLog2Length || len(buf) != 1<<log2Length {
		panic("fft: buffer length must equal 2^log2Length")
	}
	NewPlan(log2Length).Transform(forward, buf)
}

// BinFrequency returns the centre frequency in Hz of bin i for a transform of
// the given length at sampleRate. Bins above Nyquist report their alias.
// Out of range bins return 0.
func BinFrequency(bin, length int, sampleRate float64) float64 {
	if bin < 0 || bin >= length || !bitint.IsPowerOfTwo(length) {
		return 0
	}
	if bin > length/2 {
		bin = length - bin
	}
	return float64(bin) * sampleRate / float64(length)
}
