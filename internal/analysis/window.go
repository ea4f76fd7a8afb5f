// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions. Hamming is the default taper applied
// before every spectral block.
const (
	Hamming WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = [...]string{
	Hamming:         "hamming",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
	Rectangular:     "rectangular",
}

// String returns the lower case name accepted by ParseWindowFunc.
func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns the default (Hamming) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hamming", "":
		return Hamming, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hamming, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// HammingWeight returns the Hamming window weight for sample index of a block
// of the given length:
//
//	w(i) = 0.54 - 0.46 * cos(2*pi*i / (length-1))
//
// The weight is 0.08 at both edges and approaches (but for even lengths never
// reaches) 1.0 at the centre. A block of length 1 is not tapered.
//
// index and length are always caller controlled, so 0 <= index < length is a
// contract and a violation panics.
func HammingWeight(index, length int) float64 {
	if length < 1 || index < 0 || index >= length {
		panic("analysis: window index out of range")
	}
	if length == 1 {
		return 1
	}
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(index)/float64(length-1))
}

// Coefficients returns the window table of the given length for w, so the
// per-sample path is a single multiply. Unknown window types fall back to
// Hamming.
func Coefficients(w WindowFunc, length int) []float64 {
	if length < 1 {
		panic("analysis: window length must be positive")
	}
	coeffs := make([]float64, length)
	if length == 1 {
		coeffs[0] = 1
		return coeffs
	}
	if w == Hamming || w < 0 || int(w) >= len(windowNames) {
		for i := range coeffs {
			coeffs[i] = HammingWeight(i, length)
		}
		return coeffs
	}

	// gonum windows scale the sequence in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	}
	return coeffs
}
