// SPDX-License-Identifier: MIT
//
// Package cmd wires the command line interface to the engine.
package cmd

import (
	"context"
	"fmt"

	"discolights/internal/audio"
	"discolights/internal/config"
	applog "discolights/internal/log"
	"discolights/pkg/build"

	"github.com/spf13/cobra"
)

// options holds the flags shared by every command.
type options struct {
	configPath  string
	blockLength int
	notify      int
	window      string
	verbose     bool
}

// Execute runs the command line with args (without the program name).
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "f", "",
		"Path to a YAML configuration file (default ./config.yaml when present)")
	flags.IntVarP(&opts.blockLength, "block-length", "n", config.DefaultBlockLength,
		"FFT block length in samples, a power of 2")
	flags.IntVar(&opts.notify, "notify", config.AutoNotificationCount,
		"Samples per amplitude event, 0 disables, -1 for sample_rate/100")
	flags.StringVarP(&opts.window, "window", "w", config.DefaultWindow,
		"Window applied before the FFT (hamming, hann, blackman, nuttall, none, ...)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newListCommand(),
		newListenCommand(opts),
		newAnalyzeCommand(opts),
		newVersionCommand(),
	)
	return rootCmd
}

// load reads the configuration and applies any shared flags the user set
// explicitly, then configures logging.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("block-length") {
		cfg.Analysis.BlockLength = o.blockLength
	}
	if flags.Changed("notify") {
		cfg.Analysis.NotificationCount = o.notify
	}
	if flags.Changed("window") {
		cfg.Analysis.Window = o.window
	}
	if o.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applog.SetLevel(cfg.Level())
	return cfg, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.GetDevices()
			if err != nil {
				return err
			}
			audio.WriteDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.GetBuildFlags())
		},
	}
}
