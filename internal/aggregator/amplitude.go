// SPDX-License-Identifier: MIT
package aggregator

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// EnvelopeMode selects how the running min/max start each window.
type EnvelopeMode int

const (
	// EnvelopeResetToZero starts every window at (0, 0). A window whose
	// samples are all on one side of zero reports 0 for the other bound.
	EnvelopeResetToZero EnvelopeMode = iota
	// EnvelopeFromFirstSample seeds min and max with the first sample of
	// each window, so the envelope only covers samples actually seen.
	EnvelopeFromFirstSample
)

// String returns the config name of the mode.
func (m EnvelopeMode) String() string {
	switch m {
	case EnvelopeResetToZero:
		return "zero"
	case EnvelopeFromFirstSample:
		return "first"
	default:
		return fmt.Sprintf("EnvelopeMode(%d)", int(m))
	}
}

// ParseEnvelopeMode converts "zero" or "first" (case-insensitive) to an
// EnvelopeMode.
func ParseEnvelopeMode(name string) (EnvelopeMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "zero", "":
		return EnvelopeResetToZero, nil
	case "first", "first_sample":
		return EnvelopeFromFirstSample, nil
	default:
		return EnvelopeResetToZero, fmt.Errorf("unknown envelope mode: '%s'", name)
	}
}

// AmplitudeAccumulator tracks the running min/max over a window of
// notification-count samples and emits an AmplitudeEvent when it fills.
type AmplitudeAccumulator struct {
	min   float64
	max   float64
	count int
	mode  EnvelopeMode

	threshold atomic.Int64 // <= 0 disables emission
	listeners listeners[AmplitudeEvent]
}

// NewAmplitudeAccumulator returns an accumulator that never emits until a
// positive notification count is set.
func NewAmplitudeAccumulator(mode EnvelopeMode) (*AmplitudeAccumulator, error) {
	if mode != EnvelopeResetToZero && mode != EnvelopeFromFirstSample {
		return nil, fmt.Errorf("%w: unknown envelope mode %d", ErrInvalidConfiguration, int(mode))
	}
	return &AmplitudeAccumulator{mode: mode}, nil
}

// OnSample folds v into the current window and publishes the envelope once
// the window holds notification-count samples.
func (a *AmplitudeAccumulator) OnSample(v float64) {
	if a.mode == EnvelopeFromFirstSample && a.count == 0 {
		a.min, a.max = v, v
	} else {
		a.max = math.Max(a.max, v)
		a.min = math.Min(a.min, v)
	}
	a.count++

	n := a.threshold.Load()
	if n > 0 && int64(a.count) >= n {
		a.listeners.publish(AmplitudeEvent{Min: a.min, Max: a.max})
		a.Reset()
	}
}

// Reset discards the current window. The notification count is kept.
func (a *AmplitudeAccumulator) Reset() {
	a.min, a.max = 0, 0
	a.count = 0
}

// SetNotificationCount sets the window size in samples. Zero or negative
// disables amplitude events.
func (a *AmplitudeAccumulator) SetNotificationCount(n int) {
	a.threshold.Store(int64(n))
}

// NotificationCount returns the window size in samples.
func (a *AmplitudeAccumulator) NotificationCount() int {
	return int(a.threshold.Load())
}

// Subscribe registers fn for amplitude events and returns a function that
// removes it. The returned cancel func is idempotent.
func (a *AmplitudeAccumulator) Subscribe(fn func(AmplitudeEvent)) (cancel func()) {
	return a.listeners.subscribe(fn)
}

// Pending returns the envelope and sample count of the window in progress.
// It must only be called from the producer goroutine.
func (a *AmplitudeAccumulator) Pending() (AmplitudeEvent, int) {
	return AmplitudeEvent{Min: a.min, Max: a.max}, a.count
}

// Mode returns the envelope mode.
func (a *AmplitudeAccumulator) Mode() EnvelopeMode {
	return a.mode
}
