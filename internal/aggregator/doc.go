// SPDX-License-Identifier: MIT
/*
Package aggregator turns a stream of audio samples into two event streams:
min/max amplitude envelopes over a configurable number of samples, and
windowed FFT spectra over fixed power-of-two blocks.

Real-Time Contract:
  - Add is called once per sample from a single producer goroutine
    (normally the audio callback)
  - Add never allocates, never locks and never does I/O
  - Subscribers run synchronously inside Add; anything slower than a few
    microseconds must be handed to another goroutine (see transport.Relay)

Spectrum Lifetime:

	The SpectrumEvent handed to a subscriber is a view over the
	accumulator's own buffer. It is valid only until the callback returns,
	the next sample overwrites it. Copy with CopyInto or Magnitudes to keep
	it.

Configuration set through SetNotificationCount and SetPerformFFT is stored
atomically, so a UI goroutine may change it while the producer runs; the new
value applies from the next sample.
*/
package aggregator
