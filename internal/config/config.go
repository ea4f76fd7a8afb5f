// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"discolights/internal/aggregator"
	"discolights/internal/analysis"
	applog "discolights/internal/log"
	"discolights/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Core configuration constants that define the boundaries and defaults
// for the capture and analysis pipeline.
const (
	DefaultDeviceID          = MinDeviceID // System default input device
	DefaultChannels          = 1           // Mono capture
	DefaultSampleRate        = 44100       // CD-quality audio
	DefaultFramesPerBuffer   = 512         // Balanced latency/performance
	DefaultGateThreshold     = 0.0         // Gate open
	DefaultBlockLength       = aggregator.DefaultBlockLength
	DefaultWindow            = "hamming"
	DefaultEnvelopeMode      = "zero"
	DefaultNotificationRate  = 100 // Amplitude events per second
	AutoNotificationCount    = -1  // Derive the count from the sample rate
	DefaultBeatThreshold     = 0.1
	DefaultBeatRatio         = 1.5
	DefaultUDPTargetAddress  = "127.0.0.1:9090"
	DefaultWebSocketAddress  = ":8080"
	DefaultQueueSize         = 64
	DefaultRecordingDir      = "./recordings"
	DefaultRecordingBitDepth = 16

	// Hardware and processing limits
	MinDeviceID    = -1     // -1 represents system default device
	MinSampleRate  = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate  = 192000 // Maximum supported sample rate (Hz)
	MaxBlockLength = 1 << 16

	// Largest block whose spectrum fits a single UDP datagram.
	MaxUDPBlockLength = 1 << 14
)

// DefaultEnvFile is read for ENV_* overrides when present.
const DefaultEnvFile = ".env"

// Config is the runtime configuration, loaded from YAML with environment
// overrides applied on top.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces log_level debug.
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error.
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Transport TransportConfig `yaml:"transport"`
	Recording RecordingConfig `yaml:"recording"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default.
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per capture callback.
	InputChannels   int     `yaml:"input_channels"`    // Downmixed to mono before analysis.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	GateThreshold   float64 `yaml:"gate_threshold"`    // 0..1, buffers peaking below are zeroed.
}

// AnalysisConfig holds aggregator and trigger settings.
type AnalysisConfig struct {
	BlockLength       int     `yaml:"block_length"`       // FFT block, power of 2.
	Window            string  `yaml:"window"`             // Window applied before the FFT.
	PerformFFT        bool    `yaml:"perform_fft"`        // Emit spectrum events.
	NotificationCount int     `yaml:"notification_count"` // Samples per amplitude event, 0 disables, -1 for sample_rate/100.
	EnvelopeMode      string  `yaml:"envelope_mode"`      // zero or first.
	BeatThreshold     float64 `yaml:"beat_threshold"`     // Minimum envelope swing for a beat.
	BeatRatio         float64 `yaml:"beat_ratio"`         // Required rise over the running average.
}

// TransportConfig holds event delivery settings.
type TransportConfig struct {
	LogEvents        bool   `yaml:"log_events"`         // Log every delivered message at debug level.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send binary packets over UDP.
	UDPTargetAddress string `yaml:"udp_target_address"` // host:port.
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Broadcast JSON on /ws.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address.
	QueueSize        int    `yaml:"queue_size"`         // Relay queue depth.
}

// RecordingConfig holds capture recording settings.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			GateThreshold:   DefaultGateThreshold,
		},
		Analysis: AnalysisConfig{
			BlockLength:       DefaultBlockLength,
			Window:            DefaultWindow,
			PerformFFT:        true,
			NotificationCount: AutoNotificationCount,
			EnvelopeMode:      DefaultEnvelopeMode,
			BeatThreshold:     DefaultBeatThreshold,
			BeatRatio:         DefaultBeatRatio,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			WebSocketAddress: DefaultWebSocketAddress,
			QueueSize:        DefaultQueueSize,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultRecordingBitDepth,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, "config.yaml" in the working directory is used when it exists and
// the built-in defaults otherwise. ENV_* overrides from the process
// environment and from a .env file are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	return load(path, DefaultEnvFile)
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	env, err := newEnv(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	cfg.applyEnvOverrides(env)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run
// with.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level '%s' is not recognised", c.LogLevel))
	}

	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be within [%d, %d], got %.0f",
			MinSampleRate, MaxSampleRate, c.Audio.SampleRate))
	}
	if c.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", c.Audio.FramesPerBuffer))
	}
	if c.Audio.InputChannels <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_channels must be positive, got %d", c.Audio.InputChannels))
	}
	if c.Audio.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice))
	}
	if c.Audio.GateThreshold < 0 || c.Audio.GateThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.gate_threshold must be within [0, 1], got %g", c.Audio.GateThreshold))
	}

	if !bitint.IsPowerOfTwo(c.Analysis.BlockLength) || c.Analysis.BlockLength > MaxBlockLength {
		errs = append(errs, fmt.Errorf("analysis.block_length must be a power of 2 up to %d, got %d",
			MaxBlockLength, c.Analysis.BlockLength))
	}
	if _, err := analysis.ParseWindowFunc(c.Analysis.Window); err != nil {
		errs = append(errs, fmt.Errorf("analysis.window: %w", err))
	}
	if _, err := aggregator.ParseEnvelopeMode(c.Analysis.EnvelopeMode); err != nil {
		errs = append(errs, fmt.Errorf("analysis.envelope_mode: %w", err))
	}
	if c.Analysis.NotificationCount < AutoNotificationCount {
		errs = append(errs, fmt.Errorf("analysis.notification_count must be >= %d, got %d",
			AutoNotificationCount, c.Analysis.NotificationCount))
	}
	if c.Analysis.BeatRatio < 1 {
		errs = append(errs, fmt.Errorf("analysis.beat_ratio must be >= 1, got %g", c.Analysis.BeatRatio))
	}

	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)",
			c.Transport.UDPTargetAddress))
	}
	if c.Transport.UDPEnabled && c.Analysis.PerformFFT && c.Analysis.BlockLength > MaxUDPBlockLength {
		errs = append(errs, fmt.Errorf("analysis.block_length must be at most %d with udp enabled, got %d",
			MaxUDPBlockLength, c.Analysis.BlockLength))
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		errs = append(errs, errors.New("transport.websocket_address must be set when websocket is enabled"))
	}
	if c.Transport.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("transport.queue_size must be positive, got %d", c.Transport.QueueSize))
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 && c.Recording.BitDepth != 32 {
		errs = append(errs, fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth))
	}

	return errors.Join(errs...)
}

// Level returns the effective log level, debug wins over log_level.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// NotificationCountFor returns the samples per amplitude event at
// sampleRate. An automatic count gives DefaultNotificationRate events per
// second.
func (c *Config) NotificationCountFor(sampleRate float64) int {
	if c.Analysis.NotificationCount >= 0 {
		return c.Analysis.NotificationCount
	}
	return max(1, int(sampleRate)/DefaultNotificationRate)
}

// AggregatorOptions translates the analysis section into aggregator
// options for a stream at sampleRate. The config must have passed Validate.
func (c *Config) AggregatorOptions(sampleRate float64) []aggregator.Option {
	window, _ := analysis.ParseWindowFunc(c.Analysis.Window)
	mode, _ := aggregator.ParseEnvelopeMode(c.Analysis.EnvelopeMode)
	return []aggregator.Option{
		aggregator.WithWindow(window),
		aggregator.WithEnvelopeMode(mode),
		aggregator.WithNotificationCount(c.NotificationCountFor(sampleRate)),
		aggregator.WithPerformFFT(c.Analysis.PerformFFT),
	}
}

// env resolves ENV_* variables, preferring the process environment over
// values read from the .env file.
type env struct {
	file map[string]string
}

func newEnv(envFile string) (env, error) {
	if envFile == "" {
		return env{}, nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		return env{}, nil
	}
	values, err := godotenv.Read(envFile)
	if err != nil {
		return env{}, err
	}
	return env{file: values}, nil
}

func (e env) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok
}

func (e env) boolVar(key string, dst *bool) {
	if val, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
			applog.Debugf("configuration: Overriding %s from env: %v", key, b)
		} else {
			applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		}
	}
}

func (e env) intVar(key string, dst *int) {
	if val, ok := e.lookup(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
			applog.Debugf("configuration: Overriding %s from env: %d", key, n)
		} else {
			applog.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
		}
	}
}

func (e env) stringVar(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
		applog.Debugf("configuration: Overriding %s from env: %s", key, val)
	}
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
func (c *Config) applyEnvOverrides(e env) {
	e.boolVar("ENV_DEBUG", &c.Debug)
	e.stringVar("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_AUDIO_{...}
	e.intVar("ENV_AUDIO_INPUT_DEVICE", &c.Audio.InputDevice)

	// ENV_ANALYSIS_{...}
	e.intVar("ENV_ANALYSIS_BLOCK_LENGTH", &c.Analysis.BlockLength)
	e.stringVar("ENV_ANALYSIS_WINDOW", &c.Analysis.Window)
	e.boolVar("ENV_ANALYSIS_PERFORM_FFT", &c.Analysis.PerformFFT)
	e.intVar("ENV_ANALYSIS_NOTIFICATION_COUNT", &c.Analysis.NotificationCount)
	e.stringVar("ENV_ANALYSIS_ENVELOPE_MODE", &c.Analysis.EnvelopeMode)

	// ENV_UDP_{...} and ENV_WS_{...}
	e.boolVar("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	e.stringVar("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	e.boolVar("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	e.stringVar("ENV_WS_ADDRESS", &c.Transport.WebSocketAddress)
}
