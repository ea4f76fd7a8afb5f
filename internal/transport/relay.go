// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"discolights/internal/aggregator"
	"discolights/internal/analysis"
	applog "discolights/internal/log"
)

// DefaultQueueSize is used when RelayConfig.QueueSize is not positive.
const DefaultQueueSize = 64

// RelayConfig selects what a Relay derives from aggregator events.
type RelayConfig struct {
	QueueSize    int
	SendSpectrum bool                   // publish SpectrumMessage per block
	Bands        *analysis.BandEnergy   // publish BandsMessage per block when set
	Beats        *analysis.BeatDetector // publish BeatMessage on onsets when set
}

type relayEvent struct {
	spectrum  bool
	amplitude aggregator.AmplitudeEvent
	bins      []complex128
	block     uint64
}

// Relay moves aggregator events off the producer goroutine. Its callbacks
// copy each event into a bounded queue without blocking or allocating;
// when the queue or the spectrum buffer pool is exhausted the event is
// dropped and counted. A single goroutine started by Start turns queued
// events into messages and sends them to every transport.
type Relay struct {
	agg        *aggregator.Aggregator
	transports []Transport
	cfg        RelayConfig

	queue chan relayEvent
	free  chan []complex128 // spectrum buffers not currently queued

	dropped   atomic.Uint64
	delivered atomic.Uint64

	cancels   []func()
	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewRelay creates a relay for agg. It does not subscribe until Start.
func NewRelay(agg *aggregator.Aggregator, cfg RelayConfig, transports ...Transport) (*Relay, error) {
	if agg == nil {
		return nil, errors.New("relay: aggregator cannot be nil")
	}
	if len(transports) == 0 {
		return nil, errors.New("relay: at least one transport is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	r := &Relay{
		agg:        agg,
		transports: transports,
		cfg:        cfg,
		queue:      make(chan relayEvent, cfg.QueueSize),
		stop:       make(chan struct{}),
	}

	if r.wantsSpectrum() {
		n := agg.BlockLength()
		if cfg.Bands != nil && cfg.Bands.BlockLength() != n {
			return nil, fmt.Errorf("relay: band energy block length %d does not match aggregator block length %d",
				cfg.Bands.BlockLength(), n)
		}
		// One buffer per queue slot plus one in flight on the delivery goroutine.
		r.free = make(chan []complex128, cfg.QueueSize+1)
		for range cfg.QueueSize + 1 {
			r.free <- make([]complex128, n)
		}
	}

	applog.Debugf("Relay: Initializing (Queue: %d, Spectrum: %t, Bands: %t, Beats: %t, Transports: %d)",
		cfg.QueueSize, cfg.SendSpectrum, cfg.Bands != nil, cfg.Beats != nil, len(transports))
	return r, nil
}

func (r *Relay) wantsSpectrum() bool {
	return r.cfg.SendSpectrum || r.cfg.Bands != nil
}

// Start subscribes to the aggregator and launches the delivery goroutine,
// which runs until ctx is done or Close is called. Subsequent calls are
// no-ops.
func (r *Relay) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.cancels = append(r.cancels, r.agg.OnAmplitude(r.onAmplitude))
		if r.wantsSpectrum() {
			r.cancels = append(r.cancels, r.agg.OnSpectrum(r.onSpectrum))
		}

		r.wg.Add(1)
		go r.run(ctx)
	})
}

// Dropped returns the number of events discarded because the relay could
// not keep up.
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Delivered returns the number of events turned into messages.
func (r *Relay) Delivered() uint64 {
	return r.delivered.Load()
}

// Close unsubscribes, stops the delivery goroutine and closes every
// transport. It is safe to call more than once.
func (r *Relay) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, cancel := range r.cancels {
			cancel()
		}
		close(r.stop)
		r.wg.Wait()

		for _, t := range r.transports {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		applog.Debugf("Relay: Closed (Delivered: %d, Dropped: %d)", r.Delivered(), r.Dropped())
	})
	return errors.Join(errs...)
}

// onAmplitude runs on the producer goroutine.
func (r *Relay) onAmplitude(e aggregator.AmplitudeEvent) {
	select {
	case r.queue <- relayEvent{amplitude: e}:
	default:
		r.dropped.Add(1)
	}
}

// onSpectrum runs on the producer goroutine. The event's bins are only valid
// for the duration of the call, so they are copied into a pooled buffer.
func (r *Relay) onSpectrum(e aggregator.SpectrumEvent) {
	var buf []complex128
	select {
	case buf = <-r.free:
	default:
		r.dropped.Add(1)
		return
	}
	e.CopyInto(buf)

	select {
	case r.queue <- relayEvent{spectrum: true, bins: buf, block: e.Block}:
	default:
		r.free <- buf
		r.dropped.Add(1)
	}
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case ev := <-r.queue:
			r.handle(ev)
		}
	}
}

func (r *Relay) handle(ev relayEvent) {
	r.delivered.Add(1)

	if !ev.spectrum {
		amp := ev.amplitude
		r.deliver(AmplitudeMessage{Type: TypeAmplitude, Min: amp.Min, Max: amp.Max})
		if r.cfg.Beats != nil && r.cfg.Beats.Process(amp.Min, amp.Max) {
			r.deliver(BeatMessage{Type: TypeBeat, Swing: amp.Max - amp.Min})
		}
		return
	}

	defer func() { r.free <- ev.bins }()

	if r.cfg.SendSpectrum {
		mags := aggregator.SpectrumEvent{Bins: ev.bins, Block: ev.block}.Magnitudes(nil)
		r.deliver(SpectrumMessage{Type: TypeSpectrum, Block: ev.block, Magnitudes: mags})
	}
	if r.cfg.Bands != nil {
		levels := r.cfg.Bands.Process(ev.bins)
		bands := r.cfg.Bands.Bands()
		msg := BandsMessage{
			Type:   TypeBands,
			Block:  ev.block,
			Names:  make([]string, len(bands)),
			Levels: make([]float64, len(levels)),
		}
		for i, b := range bands {
			msg.Names[i] = b.Name
		}
		copy(msg.Levels, levels)
		r.deliver(msg)
	}
}

func (r *Relay) deliver(msg any) {
	for _, t := range r.transports {
		if err := t.Send(msg); err != nil {
			applog.Warnf("Relay: Transport %T send failed: %v", t, err)
		}
	}
}
