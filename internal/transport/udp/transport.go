// SPDX-License-Identifier: MIT
//
// Package udp publishes analysis messages as compact binary datagrams for
// lighting controllers that cannot parse JSON.
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	applog "discolights/internal/log"
	"discolights/internal/transport"
)

// Transport encodes relay messages into packets and sends them through a
// Sender. It implements transport.Transport.
type Transport struct {
	sender *Sender

	mu     sync.Mutex // Serialises encoding into the shared buffers.
	seq    uint32
	values []float32
	packet bytes.Buffer
	now    func() time.Time
}

// NewTransport creates a Transport sending to address.
func NewTransport(address string) (*Transport, error) {
	sender, err := NewSender(address)
	if err != nil {
		return nil, err
	}
	applog.Infof("Transport: Using UDP transport to %s", address)
	return &Transport{sender: sender, now: time.Now}, nil
}

// Send encodes msg and transmits it. Unknown message types are rejected.
func (t *Transport) Send(msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.values = t.values[:0]
	var kind Kind
	switch m := msg.(type) {
	case transport.AmplitudeMessage:
		kind = KindAmplitude
		t.values = append(t.values, float32(m.Min), float32(m.Max))
	case transport.SpectrumMessage:
		kind = KindSpectrum
		t.values = appendFloat32(t.values, m.Magnitudes)
	case transport.BandsMessage:
		kind = KindBands
		t.values = appendFloat32(t.values, m.Levels)
	case transport.BeatMessage:
		kind = KindBeat
		t.values = append(t.values, float32(m.Swing))
	default:
		return fmt.Errorf("udp: unsupported message type %T", msg)
	}

	t.seq++
	h := Header{Seq: t.seq, Timestamp: t.now().UnixNano(), Kind: kind}
	if err := Encode(&t.packet, h, t.values); err != nil {
		return err
	}
	return t.sender.Send(t.packet.Bytes())
}

// Close closes the underlying sender.
func (t *Transport) Close() error {
	return t.sender.Close()
}

func appendFloat32(dst []float32, src []float64) []float32 {
	for _, v := range src {
		dst = append(dst, float32(v))
	}
	return dst
}

var _ transport.Transport = (*Transport)(nil)
