// Focus Stacker - groups focus-bracketed bursts into stacks and merges them
//
// This tool scans a directory of camera files, reads each capture time from
// EXIF metadata, groups shots taken in quick succession into numbered stack
// directories (Stack_001, Stack_002, ...) and runs Helicon Focus over every
// stack to produce the merged images.
//
// Features:
//   - Batched, parallel capture time extraction (exiftool or in-process EXIF)
//   - Stack detection by gap between consecutive shots
//   - Parallel, cross-device safe file moves with .xmp sidecars
//   - Idempotent merging: existing outputs are never recomputed
//   - CSV report of every move
//   - Empty folder cleanup
//
// Usage:
//
//	focus-stacker sort ./card                 # Sort images into Stack_NNN folders
//	focus-stacker sort -n ./card              # Preview (dry-run)
//	focus-stacker merge ./card                # Merge every stack under ./card
//	focus-stacker merge --resume ./card       # Skip stacks already merged
//	focus-stacker sort-and-merge ./card       # Both in one go
//	focus-stacker config init                 # Write the default config file
//
// Resulting directory structure:
//
//	card/
//	├── Stack_001/
//	│   ├── P1010001.ORF
//	│   ├── P1010001.xmp
//	│   └── stacked/   <- Stack_001_A.dng, Stack_001_B.dng, Stack_001_AB.dng
//	├── Stack_002/
//	└── focus_stacks.csv
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"focus-stacker/internal/config"
	"focus-stacker/internal/logging"
	"focus-stacker/internal/pipeline"
)

// =============================================================================
// Main Entry Point
// =============================================================================

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCommand().ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{
		configPath: os.Getenv(config.EnvPrefix + "_CONFIG"),
		logLevel:   "info",
	}
	cmd := &cobra.Command{
		Use:           "focus-stacker",
		Short:         "Group focus-bracketed bursts into stacks and merge them",
		Long:          "focus-stacker sorts camera files into stack directories by capture time and merges each stack with Helicon Focus.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "Config file (default: "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")

	cmd.AddCommand(
		newSortCommand(opts),
		newMergeCommand(opts),
		newSortAndMergeCommand(opts),
		newConfigCommand(opts),
	)
	cmd.Example = `  # Preview how a card would be sorted
  focus-stacker sort -n /Volumes/EOS_DIGITAL/DCIM/100OLYMP

  # Sort into a separate folder, then merge with methods A and C
  focus-stacker sort ./card ./stacks
  focus-stacker merge ./stacks --method-b=false --method-c

  # Resume an interrupted merge
  focus-stacker merge --resume ./stacks`
	return cmd
}

// =============================================================================
// Configuration Loading
// =============================================================================

// flagKeys maps command-line flags to configuration keys. Only flags a
// command actually defines are bound.
var flagKeys = map[string]string{
	"interval":         "sorter.interval",
	"min-stack-size":   "sorter.min_stack_size",
	"name-format":      "sorter.name_format",
	"recursive":        "sorter.recursive",
	"sidecars":         "sorter.move_sidecars",
	"move-workers":     "sorter.workers",
	"report":           "sorter.report",
	"cleanup":          "sorter.cleanup_empty_dirs",
	"backend":          "metadata.backend",
	"exiftool":         "metadata.binary",
	"tag":              "metadata.tag",
	"date-format":      "metadata.date_format",
	"batch-size":       "metadata.batch_size",
	"metadata-workers": "metadata.workers",
	"engine":           "merge.engine",
	"extra-args":       "merge.extra_args",
	"radius":           "merge.radius",
	"smoothing":        "merge.smoothing",
	"quality":          "merge.jpeg_quality",
	"format":           "merge.format",
	"output-subdir":    "merge.output_subdir",
	"method-a":         "merge.methods.a",
	"method-b":         "merge.methods.b",
	"method-c":         "merge.methods.c",
	"combine":          "merge.methods.ab",
}

// bindViper returns a viper instance with the command's flags bound over
// environment, config file and defaults.
func bindViper(cmd *cobra.Command, opts *rootOptions) (*viper.Viper, error) {
	v := config.NewViper(opts.configPath)
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, bindErr
	}
	if err := config.ReadFile(v, opts.configPath != ""); err != nil {
		return nil, err
	}
	return v, nil
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	v, err := bindViper(cmd, opts)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

// setup loads configuration and builds the logger and pipeline for a run.
func setup(cmd *cobra.Command, opts *rootOptions, extra ...pipeline.Option) (*pipeline.Pipeline, logr.Logger, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	log, err := logging.New(opts.logLevel)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	log = log.WithValues("run", uuid.NewString())
	p, err := pipeline.New(cfg, log, extra...)
	if err != nil {
		return nil, logr.Logger{}, err
	}
	return p, log, nil
}

// =============================================================================
// Error Reporting
// =============================================================================

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var validation *config.ValidationError
	var resource *pipeline.ResourceError
	switch {
	case errors.Is(err, context.Canceled):
		message = "interrupted; re-run the same command to continue where it stopped"
	case errors.As(err, &validation):
		message = fmt.Sprintf("%s\nHint: run 'focus-stacker config show' to see the effective configuration.", err)
	case errors.As(err, &resource) && resource.Op == "merge engine":
		message = fmt.Sprintf("%s\nHint: set merge.engine in the config file or pass --engine with the Helicon Focus executable.", err)
	case errors.As(err, &resource) && resource.Op == "metadata tool":
		message = fmt.Sprintf("%s\nHint: install exiftool or use --backend goexif.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
