// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discolights/internal/aggregator"
	"discolights/internal/analysis"
	"discolights/internal/audio"
	"discolights/internal/config"
	applog "discolights/internal/log"
	"discolights/internal/transport"
	"discolights/internal/transport/udp"
	"discolights/internal/tui"
	"discolights/pkg/build"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type listenOptions struct {
	headless        bool
	pick            bool
	record          bool
	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	gate            float64
}

func newListenCommand(opts *options) *cobra.Command {
	lo := &listenOptions{}

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Capture from an input device and publish analysis events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			lo.apply(cmd, cfg)

			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if lo.pick {
				devices, err := audio.HostDevices()
				if err != nil {
					return err
				}
				sel, err := tui.PickDevice(devices)
				if err != nil {
					return err
				}
				if !sel.Confirmed {
					return nil
				}
				cfg.Audio.InputDevice = sel.DeviceID
				cfg.Audio.SampleRate = sel.SampleRate
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			return runListen(cmd.Context(), cfg, lo.headless)
		},
	}

	lo.bindFlags(listenCmd)
	return listenCmd
}

// bindFlags registers the capture flags on cmd.
func (lo *listenOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&lo.headless, "headless", false, "Run without the terminal meter")
	flags.BoolVarP(&lo.pick, "pick", "p", false, "Choose the input device and sample rate interactively")
	flags.BoolVarP(&lo.record, "record", "r", false, "Record the raw capture to a WAV file")
	flags.IntVarP(&lo.device, "device", "d", config.DefaultDeviceID,
		"Input device ID, -1 for the system default. Use 'list' to see available devices.")
	flags.IntVarP(&lo.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture (downmixed to mono)")
	flags.Float64VarP(&lo.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&lo.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&lo.lowLatency, "low-latency", "l", false,
		"Use the device's low input latency")
	flags.Float64VarP(&lo.gate, "gate", "g", config.DefaultGateThreshold,
		"Noise gate threshold 0..1, 0 disables")
}

// apply copies explicitly set capture flags over the loaded configuration.
func (lo *listenOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Audio.InputDevice = lo.device
	}
	if flags.Changed("channels") {
		cfg.Audio.InputChannels = lo.channels
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = lo.sampleRate
	}
	if flags.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = lo.framesPerBuffer
	}
	if flags.Changed("low-latency") {
		cfg.Audio.LowLatency = lo.lowLatency
	}
	if flags.Changed("gate") {
		cfg.Audio.GateThreshold = lo.gate
	}
	if lo.record {
		cfg.Recording.Enabled = true
	}
}

// openTransports creates the network and logging transports enabled in cfg.
func openTransports(cfg *config.Config) ([]transport.Transport, error) {
	var transports []transport.Transport
	closeAll := func() {
		for _, t := range transports {
			t.Close()
		}
	}

	if cfg.Transport.LogEvents {
		transports = append(transports, transport.NewLoggingTransport())
	}
	if cfg.Transport.UDPEnabled {
		t, err := udp.NewTransport(cfg.Transport.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, err
		}
		transports = append(transports, t)
	}
	if cfg.Transport.WebSocketEnabled {
		t, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if err != nil {
			closeAll()
			return nil, err
		}
		transports = append(transports, t)
	}
	return transports, nil
}

// newPipeline builds the aggregator and a relay delivering to transports.
func newPipeline(cfg *config.Config, transports []transport.Transport) (*aggregator.Aggregator, *transport.Relay, error) {
	agg, err := aggregator.New(cfg.Analysis.BlockLength, cfg.AggregatorOptions(cfg.Audio.SampleRate)...)
	if err != nil {
		return nil, nil, err
	}

	relayCfg := transport.RelayConfig{
		QueueSize: cfg.Transport.QueueSize,
		Beats:     analysis.NewBeatDetector(cfg.Analysis.BeatThreshold, cfg.Analysis.BeatRatio),
	}
	if cfg.Analysis.PerformFFT {
		relayCfg.Bands, err = analysis.NewBandEnergy(cfg.Analysis.BlockLength, cfg.Audio.SampleRate, analysis.DefaultBands)
		if err != nil {
			return nil, nil, err
		}
		relayCfg.SendSpectrum = cfg.Transport.UDPEnabled || cfg.Transport.WebSocketEnabled
	}

	relay, err := transport.NewRelay(agg, relayCfg, transports...)
	if err != nil {
		return nil, nil, err
	}
	return agg, relay, nil
}

func runListen(ctx context.Context, cfg *config.Config, headless bool) error {
	transports, err := openTransports(cfg)
	if err != nil {
		return err
	}

	var program *tea.Program
	var relay *transport.Relay
	if !headless {
		title := fmt.Sprintf("%s %s", build.GetBuildFlags().Name, build.GetBuildFlags().Version)
		program = tui.NewMeterProgram(title, func() tui.Stats {
			return tui.Stats{Delivered: relay.Delivered(), Dropped: relay.Dropped()}
		})
		transports = append(transports, tui.NewTransport(program))
	}
	if len(transports) == 0 {
		transports = append(transports, transport.NewLoggingTransport())
	}

	agg, relay, err := newPipeline(cfg, transports)
	if err != nil {
		for _, t := range transports {
			t.Close()
		}
		return err
	}

	engine, err := audio.NewEngine(cfg.Audio, agg)
	if err != nil {
		relay.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay.Start(ctx)

	// Start of real-time processing: PortAudio begins calling back into
	// the engine from here on.
	if err := engine.StartInputStream(); err != nil {
		relay.Close()
		return err
	}

	var recording string
	if cfg.Recording.Enabled {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			applog.Errorf("Listen: Cannot create recording directory: %v", err)
		} else {
			recording = audio.RecordingFilename(cfg.Recording.OutputDir, time.Now().UTC())
			if err := engine.StartRecording(recording, cfg.Recording.BitDepth); err != nil {
				applog.Errorf("Listen: Cannot start recording: %v", err)
				recording = ""
			}
		}
	}

	if program != nil {
		// The meter owns the terminal.
		applog.SetOutput(io.Discard)
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		_, err = program.Run()
		applog.SetOutput(os.Stderr)
	} else {
		applog.Infof("Listen: Capturing, press Ctrl+C to stop")
		<-ctx.Done()
	}

	// Stop the producer before tearing down its consumers.
	err = errors.Join(err, engine.Close(), relay.Close())
	if recording != "" {
		fmt.Printf("Recording saved to: %s\n", recording)
	}
	return err
}
