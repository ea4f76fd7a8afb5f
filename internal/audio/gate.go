// SPDX-License-Identifier: MIT
package audio

import "math"

func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// GateEnabled reports whether the gate is active.
func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold, clamped to 0.0-1.0
// where 0=always open, 1=closed for anything short of full scale.
func (e *Engine) SetGateThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	e.gateThreshold.Store(math.Float64bits(threshold))
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	return math.Float64frombits(e.gateThreshold.Load())
}
