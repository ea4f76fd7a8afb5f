// SPDX-License-Identifier: MIT
package transport

import (
	applog "discolights/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the message type and a short summary.
func (lt *LoggingTransport) Send(data any) error {
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	switch m := data.(type) {
	case AmplitudeMessage:
		applog.Debugf("LOG_TRANSPORT: amplitude min=%.4f max=%.4f", m.Min, m.Max)
	case SpectrumMessage:
		applog.Debugf("LOG_TRANSPORT: spectrum block=%d bins=%d", m.Block, len(m.Magnitudes))
	case BandsMessage:
		applog.Debugf("LOG_TRANSPORT: bands block=%d %v=%.3f", m.Block, m.Names, m.Levels)
	case BeatMessage:
		applog.Debugf("LOG_TRANSPORT: beat swing=%.4f", m.Swing)
	default:
		applog.Debugf("LOG_TRANSPORT: received (%T): %+v", data, data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
