// SPDX-License-Identifier: MIT
package transport

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types carried by the Type field of every message.
const (
	TypeAmplitude = "amplitude"
	TypeSpectrum  = "spectrum"
	TypeBands     = "band_energy"
	TypeBeat      = "beat"
)

// AmplitudeMessage is the envelope of one amplitude window.
type AmplitudeMessage struct {
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// SpectrumMessage carries the magnitudes of bins 0..N/2 of one block.
type SpectrumMessage struct {
	Type       string    `json:"type"`
	Block      uint64    `json:"block"`
	Magnitudes []float64 `json:"magnitudes"`
}

// BandsMessage carries per-band levels in [0, 1], in band order.
type BandsMessage struct {
	Type   string    `json:"type"`
	Block  uint64    `json:"block"`
	Names  []string  `json:"names"`
	Levels []float64 `json:"levels"`
}

// BeatMessage marks an onset detected from the amplitude envelope.
type BeatMessage struct {
	Type  string  `json:"type"`
	Swing float64 `json:"swing"`
}
