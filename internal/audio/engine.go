// SPDX-License-Identifier: MIT
/*
Package audio captures live input through PortAudio and feeds it, one mono
sample at a time, to a sink such as the aggregator.

Thread Safety:
- The capture callback runs on a PortAudio thread and never allocates
- Gate and recording state are atomics, safe to change while streaming
- The callback skips recording rather than wait on a concurrent StopRecording
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"discolights/internal/config"
	applog "discolights/internal/log"
	"discolights/internal/source"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

type Engine struct {
	cfg  config.AudioConfig
	sink source.Sink

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	mono         []float64 // Downmixed frames of the current buffer

	// Noise gate.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint64 // math.Float64bits of a 0..1 peak level

	// Recording state and buffers.
	isRecording atomic.Bool
	recMu       sync.Mutex // Held while the encoder is written or torn down
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale float64
}

// NewEngine opens the configured input device. PortAudio must be
// initialized.
func NewEngine(cfg config.AudioConfig, sink source.Sink) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	if inputDevice.MaxInputChannels < cfg.InputChannels {
		return nil, fmt.Errorf("device %s has %d input channels, %d requested",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.InputChannels)
	}

	engine, err := newEngine(cfg, sink)
	if err != nil {
		return nil, err
	}
	engine.inputDevice = inputDevice
	if cfg.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	applog.Infof("Engine: Using %s (%.0f Hz, %d channels, %d frames, latency %s)",
		inputDevice.Name, cfg.SampleRate, cfg.InputChannels, cfg.FramesPerBuffer, engine.inputLatency)
	return engine, nil
}

func newEngine(cfg config.AudioConfig, sink source.Sink) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("engine: sink cannot be nil")
	}
	if cfg.InputChannels < 1 {
		return nil, fmt.Errorf("engine: invalid channel count %d", cfg.InputChannels)
	}
	if cfg.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("engine: invalid frames per buffer %d", cfg.FramesPerBuffer)
	}

	e := &Engine{
		cfg:  cfg,
		sink: sink,
		mono: make([]float64, cfg.FramesPerBuffer),
	}
	e.SetGateThreshold(cfg.GateThreshold)
	e.gateEnabled.Store(cfg.GateThreshold > 0)
	return e, nil
}

func (e *Engine) StartInputStream() error {
	if e.inputDevice == nil {
		return errors.New("engine: no input device")
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.cfg.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: e.cfg.FramesPerBuffer,
		SampleRate:      e.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream == nil {
		return nil
	}
	if err := e.inputStream.Stop(); err != nil {
		return err
	}
	if err := e.inputStream.Close(); err != nil {
		return err
	}
	e.inputStream = nil
	return nil
}

// processInputStream is the PortAudio callback. in holds interleaved
// frames. Uses pre-allocated buffers only.
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.processBuffer(in)
	e.record(in)
}

// processBuffer downmixes in to mono and passes every frame to the sink. A
// closed gate replaces the whole buffer with silence so the sink still sees
// one sample per frame.
func (e *Engine) processBuffer(in []float32) {
	channels := e.cfg.InputChannels
	frames := min(len(in)/channels, len(e.mono))
	inv := 1 / float64(channels)

	var peak float64
	for f := range frames {
		var sum float64
		for _, v := range in[f*channels : (f+1)*channels] {
			sum += float64(v)
		}
		m := sum * inv
		e.mono[f] = m
		peak = max(peak, math.Abs(m))
	}

	if e.gateEnabled.Load() && peak < e.GetGateThreshold() {
		for range frames {
			e.sink.Add(0)
		}
		return
	}
	for _, m := range e.mono[:frames] {
		e.sink.Add(m)
	}
}

func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}
	return e.StopInputStream()
}
