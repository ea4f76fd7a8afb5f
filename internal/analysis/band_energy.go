// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"discolights/internal/fft"
	"discolights/pkg/bitint"
)

// FrequencyBand defines the name and frequency range [LowHz, HighHz) of an
// energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way lighting cues usually do.
// The treble band is open ended and is capped at Nyquist.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandEnergy reduces a spectrum to one level per frequency band.
type BandEnergy struct {
	bands   []FrequencyBand
	binBand []int     // Band index for each bin 0..N/2, -1 if none.
	counts  []int     // Bins per band, fixed at construction.
	sums    []float64 // Scratch, sum of |X|^2 per band.
	levels  []float64 // Output, reused between calls.
	norm    float64   // 2/N, so a full scale bin-centred sine reads ~1 before windowing.
	length  int
}

// NewBandEnergy maps every non-redundant bin of a blockLength-point
// spectrum at sampleRate onto bands.
func NewBandEnergy(blockLength int, sampleRate float64, bands []FrequencyBand) (*BandEnergy, error) {
	if !bitint.IsPowerOfTwo(blockLength) {
		return nil, fmt.Errorf("block length must be a power of 2, got %d", blockLength)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("at least one frequency band is required")
	}
	for _, b := range bands {
		if b.HighHz <= b.LowHz {
			return nil, fmt.Errorf("band %q has an empty range [%g, %g)", b.Name, b.LowHz, b.HighHz)
		}
	}

	half := blockLength/2 + 1
	if blockLength == 1 {
		half = 1
	}
	e := &BandEnergy{
		bands:   append([]FrequencyBand(nil), bands...),
		binBand: make([]int, half),
		counts:  make([]int, len(bands)),
		sums:    make([]float64, len(bands)),
		levels:  make([]float64, len(bands)),
		norm:    2 / float64(blockLength),
		length:  blockLength,
	}
	for i := range e.binBand {
		e.binBand[i] = -1
		freq := fft.BinFrequency(i, blockLength, sampleRate)
		for j, b := range e.bands {
			if freq >= b.LowHz && freq < b.HighHz {
				e.binBand[i] = j
				e.counts[j]++
				break
			}
		}
	}
	return e, nil
}

// Process computes the RMS bin magnitude of each band, scaled by 2/N and
// clamped to [0, 1]. The returned slice is reused by the next call.
// bins must hold the full blockLength-point spectrum.
func (e *BandEnergy) Process(bins []complex128) []float64 {
	if len(bins) != e.length {
		panic("analysis: spectrum length does not match band map")
	}
	for j := range e.sums {
		e.sums[j] = 0
	}
	for i, j := range e.binBand {
		if j < 0 {
			continue
		}
		m := cmplx.Abs(bins[i])
		e.sums[j] += m * m
	}
	for j := range e.levels {
		if e.counts[j] == 0 {
			e.levels[j] = 0
			continue
		}
		rms := math.Sqrt(e.sums[j] / float64(e.counts[j]))
		e.levels[j] = math.Min(1.0, rms*e.norm)
	}
	return e.levels
}

// Bands returns the configured bands, in output order.
func (e *BandEnergy) Bands() []FrequencyBand {
	return e.bands
}

// BinCount returns how many bins were mapped to band i.
func (e *BandEnergy) BinCount(i int) int {
	return e.counts[i]
}

// BlockLength returns the spectrum length the band map was built for.
func (e *BandEnergy) BlockLength() int {
	return e.length
}
