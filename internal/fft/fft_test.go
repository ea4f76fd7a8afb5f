// SPDX-License-Identifier: MIT
package fft

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	dspfft "github.com/mjibson/go-dsp/fft"
)

const (
	testLog2Length = 10
	testLength     = 1 << testLog2Length
	testSampleRate = 44100
)

func testSignal(n int) []complex128 {
	buf := make([]complex128, n)
	for i := range buf {
		tm := float64(i) / testSampleRate
		v := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buf[i] = complex(v, 0)
	}
	return buf
}

func maxDiff(a, b []complex128) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, cmplx.Abs(a[i]-b[i]))
	}
	return d
}

func TestTransformMatchesReference(t *testing.T) {
	for _, m := range []int{1, 2, 3, 6, testLog2Length} {
		t.Run(fmt.Sprintf("2^%d", m), func(t *testing.T) {
			n := 1 << m
			in := testSignal(n)
			want := dspfft.FFT(in)

			got := make([]complex128, n)
			copy(got, in)
			Transform(true, m, got)

			if d := maxDiff(got, want); d > 1e-9 {
				t.Errorf("forward transform differs from reference by %g", d)
			}
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	plan := NewPlan(testLog2Length)
	in := testSignal(testLength)
	buf := make([]complex128, testLength)
	copy(buf, in)

	plan.Transform(true, buf)
	plan.Transform(false, buf)

	if d := maxDiff(buf, in); d > 1e-12 {
		t.Errorf("forward+inverse differs from input by %g", d)
	}
}

func TestTransformConstantBlockIsDC(t *testing.T) {
	const c = 0.25
	buf := make([]complex128, 8)
	for i := range buf {
		buf[i] = complex(c, 0)
	}
	Transform(true, 3, buf)

	if got := real(buf[0]); math.Abs(got-c*8) > 1e-12 {
		t.Errorf("bin 0 = %v, want %v", got, c*8)
	}
	for i := 1; i < len(buf); i++ {
		if cmplx.Abs(buf[i]) > 1e-12 {
			t.Errorf("bin %d = %v, want 0", i, buf[i])
		}
	}
}

func TestTransformSingleSampleIsIdentity(t *testing.T) {
	buf := []complex128{complex(0.7, 0)}
	Transform(true, 0, buf)
	if buf[0] != complex(0.7, 0) {
		t.Errorf("single point forward transform changed the value: %v", buf[0])
	}
	Transform(false, 0, buf)
	if buf[0] != complex(0.7, 0) {
		t.Errorf("single point inverse transform changed the value: %v", buf[0])
	}
}

func TestTransformLengthMismatchPanics(t *testing.T) {
	tests := []struct {
		name string
		m    int
		n    int
	}{
		{"short buffer", 4, 15},
		{"long buffer", 4, 17},
		{"negative log2", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for m=%d len=%d", tt.m, tt.n)
				}
			}()
			Transform(true, tt.m, make([]complex128, tt.n))
		})
	}
}

func TestPlanTransformZeroAllocs(t *testing.T) {
	plan := NewPlan(testLog2Length)
	buf := testSignal(testLength)

	// Warm-up call so lazily initialised state does not count.
	plan.Transform(true, buf)
	allocs := testing.AllocsPerRun(100, func() {
		plan.Transform(true, buf)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in Plan.Transform, got %.1f", allocs)
	}
}

func TestBinFrequency(t *testing.T) {
	tests := []struct {
		bin      int
		expected float64
	}{
		{0, 0},
		{1, testSampleRate / float64(testLength)},
		{testLength / 2, testSampleRate / 2},
		{testLength - 1, testSampleRate / float64(testLength)}, // Alias of bin 1
		{-1, 0},
		{testLength, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.bin), func(t *testing.T) {
			got := BinFrequency(tt.bin, testLength, testSampleRate)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("BinFrequency(%d) = %v, want %v", tt.bin, got, tt.expected)
			}
		})
	}
}

func BenchmarkPlanTransform(b *testing.B) {
	plan := NewPlan(testLog2Length)
	buf := testSignal(testLength)

	b.ReportAllocs()

	for b.Loop() {
		plan.Transform(true, buf)
	}
}
