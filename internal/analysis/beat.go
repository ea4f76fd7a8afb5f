// SPDX-License-Identifier: MIT
package analysis

// BeatDetector flags onsets from the amplitude envelope: a window whose
// peak-to-peak swing clears an absolute floor and jumps above the recent
// average by a ratio.
type BeatDetector struct {
	threshold float64 // Minimum swing (max - min) for a beat.
	ratio     float64 // Required swing / average.
	smoothing float64 // Weight of the newest window in the running average.
	cooldown  int     // Windows to ignore after a beat.

	average float64
	holdoff int
}

// Defaults for NewBeatDetector. With 10ms amplitude windows the cooldown
// caps detection at ~16 beats per second.
const (
	DefaultBeatSmoothing = 0.2
	DefaultBeatCooldown  = 6
)

// NewBeatDetector creates a detector with the given swing floor and rise
// ratio.
func NewBeatDetector(threshold, ratio float64) *BeatDetector {
	return &BeatDetector{
		threshold: threshold,
		ratio:     ratio,
		smoothing: DefaultBeatSmoothing,
		cooldown:  DefaultBeatCooldown,
	}
}

// Process folds one amplitude window into the detector and reports whether
// it is a beat.
func (d *BeatDetector) Process(min, max float64) bool {
	swing := max - min
	beat := false

	if d.holdoff > 0 {
		d.holdoff--
	} else if swing > d.threshold && (d.average == 0 || swing > d.average*d.ratio) {
		beat = true
		d.holdoff = d.cooldown
	}

	d.average += (swing - d.average) * d.smoothing
	return beat
}

// Average returns the running average swing.
func (d *BeatDetector) Average() float64 {
	return d.average
}
