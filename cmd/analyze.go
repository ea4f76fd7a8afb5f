// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"discolights/internal/aggregator"
	"discolights/internal/analysis"
	"discolights/internal/config"
	"discolights/internal/source"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"
)

// Summary aggregates the events of an offline analysis.
type Summary struct {
	Bands      []analysis.FrequencyBand
	MeanLevels []float64
	PeakLevels []float64
	Blocks     int
	Windows    int
	Beats      int
	Min, Max   float64
	Frames     int64
	SampleRate float64
}

// Duration returns the analysed length in seconds.
func (s *Summary) Duration() float64 {
	return float64(s.Frames) / s.SampleRate
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	var quiet bool

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Stream a WAV file through the aggregator and summarise it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			w, err := source.OpenWAV(args[0], 0)
			if err != nil {
				return err
			}
			defer w.Close()

			var bar *pb.ProgressBar
			var progress source.Progress
			if !quiet {
				bar = pb.New64(w.Frames()).Prefix("Analyzing")
				bar.Output = cmd.ErrOrStderr()
				bar.Start()
				progress = func(done, total int64) { bar.Set64(done) }
			}

			summary, err := analyze(cmd.Context(), cfg, float64(w.SampleRate()), func(ctx context.Context, sink source.Sink) (int64, error) {
				return w.Stream(ctx, sink, progress)
			})
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			writeSummary(cmd.OutOrStdout(), args[0], summary)
			return nil
		},
	}
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return analyzeCmd
}

// analyze runs stream through an aggregator built from cfg, with the FFT
// forced on, and collects band levels, envelope extremes and beats. Events
// are consumed synchronously on the streaming goroutine.
func analyze(ctx context.Context, cfg *config.Config, sampleRate float64,
	stream func(context.Context, source.Sink) (int64, error)) (*Summary, error) {

	opts := append(cfg.AggregatorOptions(sampleRate), aggregator.WithPerformFFT(true))
	agg, err := aggregator.New(cfg.Analysis.BlockLength, opts...)
	if err != nil {
		return nil, err
	}
	bands, err := analysis.NewBandEnergy(cfg.Analysis.BlockLength, sampleRate, analysis.DefaultBands)
	if err != nil {
		return nil, err
	}
	beats := analysis.NewBeatDetector(cfg.Analysis.BeatThreshold, cfg.Analysis.BeatRatio)

	s := &Summary{
		Bands:      bands.Bands(),
		MeanLevels: make([]float64, len(bands.Bands())),
		PeakLevels: make([]float64, len(bands.Bands())),
		Min:        math.Inf(1),
		Max:        math.Inf(-1),
		SampleRate: sampleRate,
	}

	cancelSpectrum := agg.OnSpectrum(func(e aggregator.SpectrumEvent) {
		s.Blocks++
		for i, v := range bands.Process(e.Bins) {
			s.MeanLevels[i] += v
			s.PeakLevels[i] = math.Max(s.PeakLevels[i], v)
		}
	})
	defer cancelSpectrum()

	cancelAmplitude := agg.OnAmplitude(func(e aggregator.AmplitudeEvent) {
		s.Windows++
		s.Min = math.Min(s.Min, e.Min)
		s.Max = math.Max(s.Max, e.Max)
		if beats.Process(e.Min, e.Max) {
			s.Beats++
		}
	})
	defer cancelAmplitude()

	s.Frames, err = stream(ctx, agg)
	if err != nil {
		return nil, err
	}

	if s.Blocks > 0 {
		for i := range s.MeanLevels {
			s.MeanLevels[i] /= float64(s.Blocks)
		}
	}
	if s.Windows == 0 {
		s.Min, s.Max = 0, 0
	}
	return s, nil
}

func formatRange(b analysis.FrequencyBand) string {
	if math.IsInf(b.HighHz, 1) {
		return fmt.Sprintf("%g Hz +", b.LowHz)
	}
	return fmt.Sprintf("%g-%g Hz", b.LowHz, b.HighHz)
}

func writeSummary(w io.Writer, name string, s *Summary) {
	fmt.Fprintf(w, "%s: %.2fs, %d blocks, %d amplitude windows, %d beats\n",
		name, s.Duration(), s.Blocks, s.Windows, s.Beats)
	fmt.Fprintf(w, "envelope: min %.4f, max %.4f\n", s.Min, s.Max)

	rows := make([][]string, len(s.Bands))
	for i, b := range s.Bands {
		rows[i] = []string{
			b.Name,
			formatRange(b),
			strconv.FormatFloat(s.MeanLevels[i], 'f', 4, 64),
			strconv.FormatFloat(s.PeakLevels[i], 'f', 4, 64),
		}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("band", "range", "mean", "peak").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
