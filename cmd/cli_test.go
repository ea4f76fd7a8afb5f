// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"discolights/internal/config"
	"discolights/internal/source"
	"discolights/internal/transport"
	"discolights/pkg/build"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
)

const testSampleRate = 44100

// writeToneWAV writes one second of a 1 kHz tone at half scale.
func writeToneWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("os.Create() error = %v", err)
	}
	data := make([]int, testSampleRate)
	for i := range data {
		data[i] = int(16384 * math.Sin(2*math.Pi*1000*float64(i)/testSampleRate))
	}
	enc := wav.NewEncoder(f, testSampleRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("Encoder.Write() error = %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Encoder.Close() error = %v", err)
	}
	f.Close()
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, build.GetBuildFlags().String()) {
		t.Errorf("version output = %q, want build info", out)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	path := writeToneWAV(t)

	out, err := run(t, "analyze", "--quiet", "--block-length", "512", path)
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	for _, want := range []string{"1.00s", "86 blocks", "100 amplitude windows", "1 beats", "mid", "500-2000 Hz", "4000 Hz +"} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommandErrors(t *testing.T) {
	path := writeToneWAV(t)

	tests := []struct {
		name string
		args []string
	}{
		{"No File", []string{"analyze"}},
		{"Missing File", []string{"analyze", filepath.Join(t.TempDir(), "missing.wav")}},
		{"Bad Block Length", []string{"analyze", "--block-length", "1000", path}},
		{"Bad Window", []string{"analyze", "--window", "triangle", path}},
		{"Bad Config", []string{"analyze", "--config", filepath.Join(t.TempDir(), "missing.yaml"), path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("%v error = nil, want error", tt.args)
			}
		})
	}
}

func TestAnalyzeSummary(t *testing.T) {
	cfg := config.Default()
	sine := source.NewSine(1000, 0.5, testSampleRate)

	s, err := analyze(context.Background(), cfg, testSampleRate, func(ctx context.Context, sink source.Sink) (int64, error) {
		n, err := sine.Stream(ctx, sink, testSampleRate)
		return int64(n), err
	})
	if err != nil {
		t.Fatalf("analyze() error = %v", err)
	}

	if s.Frames != testSampleRate || s.Duration() != 1 {
		t.Errorf("Frames = %d, Duration = %g, want %d, 1", s.Frames, s.Duration(), testSampleRate)
	}
	if want := testSampleRate / cfg.Analysis.BlockLength; s.Blocks != want {
		t.Errorf("Blocks = %d, want %d", s.Blocks, want)
	}
	if want := testSampleRate / cfg.NotificationCountFor(testSampleRate); s.Windows != want {
		t.Errorf("Windows = %d, want %d", s.Windows, want)
	}
	if s.Beats != 1 {
		t.Errorf("Beats = %d, want 1 for a steady tone", s.Beats)
	}
	if math.Abs(s.Max-0.5) > 1e-3 || math.Abs(s.Min+0.5) > 1e-3 {
		t.Errorf("envelope = [%g, %g], want about [-0.5, 0.5]", s.Min, s.Max)
	}

	loudest := 0
	for i, v := range s.MeanLevels {
		if v > s.MeanLevels[loudest] {
			loudest = i
		}
	}
	if name := s.Bands[loudest].Name; name != "mid" {
		t.Errorf("loudest band = %q, want %q (levels %v)", name, "mid", s.MeanLevels)
	}
}

func TestAnalyzeWindowsFollowSampleRate(t *testing.T) {
	for _, rate := range []int{22050, 48000, 96000} {
		t.Run(strconv.Itoa(rate), func(t *testing.T) {
			s, err := analyze(context.Background(), config.Default(), float64(rate), func(ctx context.Context, sink source.Sink) (int64, error) {
				n, err := source.NewSine(1000, 0.5, float64(rate)).Stream(ctx, sink, rate)
				return int64(n), err
			})
			if err != nil {
				t.Fatalf("analyze() error = %v", err)
			}
			if s.Windows != config.DefaultNotificationRate {
				t.Errorf("Windows = %d for one second at %dHz, want %d", s.Windows, rate, config.DefaultNotificationRate)
			}
		})
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := analyze(ctx, config.Default(), testSampleRate, func(ctx context.Context, sink source.Sink) (int64, error) {
		n, err := source.NewSine(440, 1, testSampleRate).Stream(ctx, sink, testSampleRate)
		return int64(n), err
	})
	if err == nil {
		t.Errorf("analyze() error = nil, want cancellation")
	}
}

func TestListenFlagsApply(t *testing.T) {
	lo := &listenOptions{}
	c := &cobra.Command{Use: "listen"}
	lo.bindFlags(c)
	if err := c.ParseFlags([]string{"-d", "3", "-c", "2", "-s", "48000", "--gate", "0.2", "-r"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := config.Default()
	lo.apply(c, cfg)

	if cfg.Audio.InputDevice != 3 || cfg.Audio.InputChannels != 2 || cfg.Audio.SampleRate != 48000 {
		t.Errorf("Audio = %+v, want device 3, 2 channels, 48000 Hz", cfg.Audio)
	}
	if cfg.Audio.GateThreshold != 0.2 || !cfg.Recording.Enabled {
		t.Errorf("gate = %g, recording = %t, want 0.2, true", cfg.Audio.GateThreshold, cfg.Recording.Enabled)
	}
	if cfg.Audio.FramesPerBuffer != config.DefaultFramesPerBuffer {
		t.Errorf("FramesPerBuffer = %d, unset flag must keep the configured value", cfg.Audio.FramesPerBuffer)
	}
}

func TestOpenTransportsDisabled(t *testing.T) {
	transports, err := openTransports(config.Default())
	if err != nil {
		t.Fatalf("openTransports() error = %v", err)
	}
	if len(transports) != 0 {
		t.Errorf("openTransports() = %d transports with everything disabled, want 0", len(transports))
	}
}

func TestPipelineNotificationCountFollowsSampleRate(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.SampleRate = 96000

	agg, relay, err := newPipeline(cfg, []transport.Transport{transport.NewLoggingTransport()})
	if err != nil {
		t.Fatalf("newPipeline() error = %v", err)
	}
	defer relay.Close()
	if agg.NotificationCount() != 960 {
		t.Errorf("NotificationCount() = %d, want 960 at 96kHz", agg.NotificationCount())
	}
}

func TestOpenTransportsEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.LogEvents = true
	cfg.Transport.UDPEnabled = true
	cfg.Transport.WebSocketEnabled = true
	cfg.Transport.WebSocketAddress = "127.0.0.1:0"

	transports, err := openTransports(cfg)
	if err != nil {
		t.Fatalf("openTransports() error = %v", err)
	}
	if len(transports) != 3 {
		t.Errorf("openTransports() = %d transports, want 3", len(transports))
	}

	agg, relay, err := newPipeline(cfg, transports)
	if err != nil {
		t.Fatalf("newPipeline() error = %v", err)
	}
	if agg.BlockLength() != cfg.Analysis.BlockLength {
		t.Errorf("BlockLength() = %d, want %d", agg.BlockLength(), cfg.Analysis.BlockLength)
	}
	if agg.NotificationCount() != 441 {
		t.Errorf("NotificationCount() = %d, want 441 at 44.1kHz", agg.NotificationCount())
	}
	if err := relay.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
