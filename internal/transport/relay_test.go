// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"math"
	"testing"
	"time"

	"discolights/internal/aggregator"
	"discolights/internal/analysis"
	"discolights/pkg/utils"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const waitTimeout = 2 * time.Second

func newTestAggregator(t *testing.T, blockLength int, opts ...aggregator.Option) *aggregator.Aggregator {
	t.Helper()
	agg, err := aggregator.New(blockLength, opts...)
	if err != nil {
		t.Fatalf("aggregator.New() error = %v", err)
	}
	return agg
}

func startRelay(t *testing.T, agg *aggregator.Aggregator, cfg RelayConfig, transports ...Transport) *Relay {
	t.Helper()
	r, err := NewRelay(agg, cfg, transports...)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	r.Start(context.Background())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewRelayValidation(t *testing.T) {
	agg := newTestAggregator(t, 16)
	mismatched, err := analysis.NewBandEnergy(32, 16, analysis.DefaultBands)
	if err != nil {
		t.Fatalf("NewBandEnergy() error = %v", err)
	}

	tests := []struct {
		name       string
		agg        *aggregator.Aggregator
		cfg        RelayConfig
		transports []Transport
	}{
		{"Nil Aggregator", nil, RelayConfig{}, []Transport{&utils.MockTransport{}}},
		{"No Transports", agg, RelayConfig{}, nil},
		{"Band Length Mismatch", agg, RelayConfig{Bands: mismatched}, []Transport{&utils.MockTransport{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRelay(tt.agg, tt.cfg, tt.transports...); err == nil {
				t.Errorf("NewRelay() error = nil, want error")
			}
		})
	}
}

func TestRelayAmplitude(t *testing.T) {
	agg := newTestAggregator(t, 16, aggregator.WithNotificationCount(4))
	mock := &utils.MockTransport{}
	startRelay(t, agg, RelayConfig{}, mock)

	for _, v := range []float64{0.5, -0.25, 0.1, 0.2, -0.5, 0.75, 0, 0} {
		agg.Add(v)
	}

	if !mock.WaitFor(2, waitTimeout) {
		t.Fatalf("received %d messages, want 2", mock.Len())
	}
	want := []any{
		AmplitudeMessage{Type: TypeAmplitude, Min: -0.25, Max: 0.5},
		AmplitudeMessage{Type: TypeAmplitude, Min: -0.5, Max: 0.75},
	}
	if diff := cmp.Diff(want, mock.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRelaySpectrumAndBands(t *testing.T) {
	const n = 16
	agg := newTestAggregator(t, n, aggregator.WithPerformFFT(true))
	bands, err := analysis.NewBandEnergy(n, n, []analysis.FrequencyBand{
		{Name: "all", LowHz: 0, HighHz: math.Inf(1)},
	})
	if err != nil {
		t.Fatalf("NewBandEnergy() error = %v", err)
	}
	mock := &utils.MockTransport{}
	startRelay(t, agg, RelayConfig{SendSpectrum: true, Bands: bands}, mock)

	for range n {
		agg.Add(1)
	}

	if !mock.WaitFor(2, waitTimeout) {
		t.Fatalf("received %d messages, want 2", mock.Len())
	}
	msgs := mock.Messages()

	sm, ok := msgs[0].(SpectrumMessage)
	if !ok {
		t.Fatalf("first message is %T, want SpectrumMessage", msgs[0])
	}
	if sm.Block != 1 {
		t.Errorf("SpectrumMessage.Block = %d, want 1", sm.Block)
	}
	if len(sm.Magnitudes) != n/2+1 {
		t.Fatalf("len(Magnitudes) = %d, want %d", len(sm.Magnitudes), n/2+1)
	}
	var dc float64
	for _, w := range analysis.Coefficients(analysis.Hamming, n) {
		dc += w
	}
	if diff := cmp.Diff(dc, sm.Magnitudes[0], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("DC magnitude mismatch (-want +got):\n%s", diff)
	}

	bm, ok := msgs[1].(BandsMessage)
	if !ok {
		t.Fatalf("second message is %T, want BandsMessage", msgs[1])
	}
	if diff := cmp.Diff([]string{"all"}, bm.Names); diff != "" {
		t.Errorf("BandsMessage.Names mismatch (-want +got):\n%s", diff)
	}
	if len(bm.Levels) != 1 || bm.Levels[0] <= 0 || bm.Levels[0] > 1 {
		t.Errorf("BandsMessage.Levels = %v, want one level in (0, 1]", bm.Levels)
	}
}

func TestRelayBeats(t *testing.T) {
	agg := newTestAggregator(t, 16, aggregator.WithNotificationCount(4))
	mock := &utils.MockTransport{}
	startRelay(t, agg, RelayConfig{Beats: analysis.NewBeatDetector(0.1, 1.5)}, mock)

	for _, v := range []float64{0, 0, 0, 0, 1, -1, 1, -1} {
		agg.Add(v)
	}

	if !mock.WaitFor(3, waitTimeout) {
		t.Fatalf("received %d messages, want 3", mock.Len())
	}
	want := []any{
		AmplitudeMessage{Type: TypeAmplitude, Min: 0, Max: 0},
		AmplitudeMessage{Type: TypeAmplitude, Min: -1, Max: 1},
		BeatMessage{Type: TypeBeat, Swing: 2},
	}
	if diff := cmp.Diff(want, mock.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

type blockingTransport struct {
	utils.MockTransport
	release chan struct{}
}

func (b *blockingTransport) Send(data any) error {
	<-b.release
	return b.MockTransport.Send(data)
}

func TestRelayDropsWhenFull(t *testing.T) {
	agg := newTestAggregator(t, 16, aggregator.WithNotificationCount(1))
	bt := &blockingTransport{release: make(chan struct{})}
	r, err := NewRelay(agg, RelayConfig{QueueSize: 1}, bt)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	r.Start(context.Background())

	const events = 10
	done := make(chan struct{})
	go func() {
		for range events {
			agg.Add(0.5)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Add blocked on a stalled transport")
	}

	// At most one event is being sent and one is queued.
	if got := r.Dropped(); got < events-2 {
		t.Errorf("Dropped() = %d, want at least %d", got, events-2)
	}

	close(bt.release)
	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if got := r.Dropped() + r.Delivered() + uint64(len(r.queue)); got != events {
		t.Errorf("dropped + delivered + queued = %d, want %d", got, events)
	}
}

func TestRelaySpectrumPoolExhaustion(t *testing.T) {
	const n = 8
	agg := newTestAggregator(t, n, aggregator.WithPerformFFT(true))
	bt := &blockingTransport{release: make(chan struct{})}
	r, err := NewRelay(agg, RelayConfig{QueueSize: 2, SendSpectrum: true}, bt)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	r.Start(context.Background())

	const blocks = 10
	for range blocks * n {
		agg.Add(1)
	}

	// Three buffers exist, one per queue slot plus one being delivered.
	if got := r.Dropped(); got < blocks-3 {
		t.Errorf("Dropped() = %d, want at least %d", got, blocks-3)
	}

	close(bt.release)
	r.Close()
}

func TestRelayClose(t *testing.T) {
	agg := newTestAggregator(t, 16, aggregator.WithNotificationCount(1))
	a, b := &utils.MockTransport{}, &utils.MockTransport{}
	r, err := NewRelay(agg, RelayConfig{}, a, b)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	r.Start(context.Background())

	agg.Add(0.25)
	if !a.WaitFor(1, waitTimeout) || !b.WaitFor(1, waitTimeout) {
		t.Fatalf("message not fanned out to both transports")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Errorf("transports not closed")
	}

	// Unsubscribed, further samples go nowhere.
	agg.Add(0.25)
	time.Sleep(10 * time.Millisecond)
	if got := a.Len(); got != 1 {
		t.Errorf("received %d messages after Close, want 1", got)
	}
}

func TestRelayContextCancel(t *testing.T) {
	agg := newTestAggregator(t, 16, aggregator.WithNotificationCount(1))
	mock := &utils.MockTransport{}
	r, err := NewRelay(agg, RelayConfig{}, mock)
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Close() did not return after context cancellation")
	}
}
