// SPDX-License-Identifier: MIT
package aggregator

import (
	"math/cmplx"
	"sync"
	"sync/atomic"
)

// AmplitudeEvent is the min/max envelope of one notification window.
type AmplitudeEvent struct {
	Min float64
	Max float64
}

// SpectrumEvent carries the FFT of one block.
//
// Bins aliases the accumulator's working buffer and is only valid for the
// duration of the callback. Do not retain it.
type SpectrumEvent struct {
	Bins  []complex128 // Frequency-domain coefficients, len == block length.
	Block uint64       // Sequence number of this block, starting at 1.
}

// Len returns the number of bins, equal to the block length.
func (e SpectrumEvent) Len() int {
	return len(e.Bins)
}

// CopyInto copies the bins into dst and returns the number copied.
func (e SpectrumEvent) CopyInto(dst []complex128) int {
	return copy(dst, e.Bins)
}

// Magnitudes writes |X[k]| for the non-redundant half of the spectrum
// (bins 0..N/2) into dst and returns it. dst is reused when it has the
// capacity, otherwise a new slice is allocated.
func (e SpectrumEvent) Magnitudes(dst []float64) []float64 {
	n := len(e.Bins)/2 + 1
	if len(e.Bins) == 1 {
		n = 1
	}
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = cmplx.Abs(e.Bins[i])
	}
	return dst
}

type subscriber[E any] struct {
	id uint64
	fn func(E)
}

// listeners is a copy-on-write subscriber list. Subscribe and cancel take a
// mutex and swap in a new slice; publish only loads the current snapshot so
// the producer never blocks on a subscriber change.
type listeners[E any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   atomic.Pointer[[]subscriber[E]]
	active atomic.Bool // len(*subs) > 0, checked before doing any work
}

func (l *listeners[E]) subscribe(fn func(E)) (cancel func()) {
	if fn == nil {
		panic("aggregator: nil subscriber")
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	var current []subscriber[E]
	if p := l.subs.Load(); p != nil {
		current = *p
	}
	next := make([]subscriber[E], len(current), len(current)+1)
	copy(next, current)
	next = append(next, subscriber[E]{id: id, fn: fn})
	l.subs.Store(&next)
	l.active.Store(true)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[E]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.subs.Load()
	if p == nil {
		return
	}
	next := make([]subscriber[E], 0, len(*p))
	for _, s := range *p {
		if s.id != id {
			next = append(next, s)
		}
	}
	l.subs.Store(&next)
	l.active.Store(len(next) > 0)
}

func (l *listeners[E]) any() bool {
	return l.active.Load()
}

func (l *listeners[E]) count() int {
	if p := l.subs.Load(); p != nil {
		return len(*p)
	}
	return 0
}

func (l *listeners[E]) publish(e E) {
	p := l.subs.Load()
	if p == nil {
		return
	}
	for _, s := range *p {
		s.fn(e)
	}
}
