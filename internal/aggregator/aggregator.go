// SPDX-License-Identifier: MIT
package aggregator

import (
	"errors"

	"discolights/internal/analysis"
	applog "discolights/internal/log"
)

// DefaultBlockLength is the FFT block size used when none is configured.
const DefaultBlockLength = 1024

// ErrInvalidConfiguration is returned when the aggregator cannot be built
// from the supplied settings, e.g. a block length that is not a power of 2.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type options struct {
	window            analysis.WindowFunc
	envelope          EnvelopeMode
	notificationCount int
	performFFT        bool
}

// Option configures an Aggregator at construction time.
type Option func(*options)

// WithWindow selects the window applied before each FFT. Default Hamming.
func WithWindow(w analysis.WindowFunc) Option {
	return func(o *options) { o.window = w }
}

// WithEnvelopeMode selects how amplitude windows are seeded. Default
// EnvelopeResetToZero.
func WithEnvelopeMode(m EnvelopeMode) Option {
	return func(o *options) { o.envelope = m }
}

// WithNotificationCount sets the initial amplitude window size. Default 0,
// which disables amplitude events.
func WithNotificationCount(n int) Option {
	return func(o *options) { o.notificationCount = n }
}

// WithPerformFFT sets the initial spectral analysis flag. Default false.
func WithPerformFFT(enabled bool) Option {
	return func(o *options) { o.performFFT = enabled }
}

// Aggregator routes every sample to a SpectralAccumulator and an
// AmplitudeAccumulator. The two run over independent window sizes.
type Aggregator struct {
	spectral  *SpectralAccumulator
	amplitude *AmplitudeAccumulator
}

// New builds an Aggregator with FFT blocks of blockLength samples. It fails
// with ErrInvalidConfiguration if blockLength is not a power of 2; the
// length is never silently rounded.
func New(blockLength int, opts ...Option) (*Aggregator, error) {
	o := options{window: analysis.Hamming, envelope: EnvelopeResetToZero}
	for _, opt := range opts {
		opt(&o)
	}

	spectral, err := NewSpectralAccumulator(blockLength, o.window)
	if err != nil {
		return nil, err
	}
	amplitude, err := NewAmplitudeAccumulator(o.envelope)
	if err != nil {
		return nil, err
	}
	spectral.SetEnabled(o.performFFT)
	amplitude.SetNotificationCount(o.notificationCount)

	applog.Debugf("Aggregator: Initializing (BlockLength: %d, Window: %s, Envelope: %s, NotificationCount: %d, PerformFFT: %t)",
		blockLength, o.window, o.envelope, o.notificationCount, o.performFFT)

	return &Aggregator{spectral: spectral, amplitude: amplitude}, nil
}

// Add feeds one sample to both accumulators. It is the only per-sample
// entry point and may publish any number of events before returning.
func (a *Aggregator) Add(v float64) {
	a.spectral.OnSample(v)
	a.amplitude.OnSample(v)
}

// Reset clears the amplitude window in progress. The spectral block
// position is internal and is not affected.
func (a *Aggregator) Reset() {
	a.amplitude.Reset()
}

// SetNotificationCount sets the number of samples per amplitude event.
// Zero or negative stops amplitude events.
func (a *Aggregator) SetNotificationCount(n int) {
	a.amplitude.SetNotificationCount(n)
}

// NotificationCount returns the number of samples per amplitude event.
func (a *Aggregator) NotificationCount() int {
	return a.amplitude.NotificationCount()
}

// SetPerformFFT enables or disables spectral analysis.
func (a *Aggregator) SetPerformFFT(enabled bool) {
	a.spectral.SetEnabled(enabled)
}

// PerformFFT reports whether spectral analysis is enabled.
func (a *Aggregator) PerformFFT() bool {
	return a.spectral.Enabled()
}

// BlockLength returns the FFT block size.
func (a *Aggregator) BlockLength() int {
	return a.spectral.BlockLength()
}

// OnAmplitude subscribes fn to amplitude events.
func (a *Aggregator) OnAmplitude(fn func(AmplitudeEvent)) (cancel func()) {
	return a.amplitude.Subscribe(fn)
}

// OnSpectrum subscribes fn to spectrum events. fn must not retain the
// event's Bins after returning.
func (a *Aggregator) OnSpectrum(fn func(SpectrumEvent)) (cancel func()) {
	return a.spectral.Subscribe(fn)
}

// Spectral exposes the spectral accumulator.
func (a *Aggregator) Spectral() *SpectralAccumulator {
	return a.spectral
}

// Amplitude exposes the amplitude accumulator.
func (a *Aggregator) Amplitude() *AmplitudeAccumulator {
	return a.amplitude
}
