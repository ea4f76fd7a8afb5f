// SPDX-License-Identifier: MIT
//
// Package source produces mono sample streams for the aggregator from
// sources other than a live capture device.
package source

// Sink consumes samples one at a time. *aggregator.Aggregator satisfies it.
type Sink interface {
	Add(v float64)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(v float64)

// Add calls f(v).
func (f SinkFunc) Add(v float64) { f(v) }

// Progress reports how many frames of total have been streamed. total is
// negative when unknown.
type Progress func(done, total int64)
