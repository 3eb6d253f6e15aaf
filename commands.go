package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"focus-stacker/internal/config"
	"focus-stacker/internal/pipeline"
	"focus-stacker/internal/stacker"
)

// =============================================================================
// Flag Sets
// =============================================================================

// addSortFlags registers the clustering and metadata flags. Defaults mirror
// config.Default so help output shows the effective values.
func addSortFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.Float64("interval", d.Sorter.Interval, "Largest gap in seconds between shots of one stack")
	fs.Int("min-stack-size", d.Sorter.MinStackSize, "Smallest number of images kept as a stack")
	fs.String("name-format", d.Sorter.NameFormat, "Stack directory name format (one integer verb)")
	fs.BoolP("recursive", "r", d.Sorter.Recursive, "Scan sub-directories of the source")
	fs.Bool("sidecars", d.Sorter.MoveSidecars, "Move .xmp sidecars along with their images")
	fs.Int("move-workers", d.Sorter.Workers, "Parallel file moves")
	fs.Bool("report", d.Sorter.Report, "Write "+stacker.ReportFile+" into the target directory")
	fs.Bool("cleanup", d.Sorter.CleanupEmptyDirs, "Remove source folders left empty after sorting")
	fs.String("backend", d.Metadata.Backend, "Metadata backend (exiftool, goexif)")
	fs.String("exiftool", d.Metadata.Binary, "exiftool executable")
	fs.String("tag", d.Metadata.Tag, "EXIF tag holding the capture time")
	fs.String("date-format", d.Metadata.DateFormat, "strftime format exiftool renders the tag with")
	fs.Int("batch-size", d.Metadata.BatchSize, "Files per exiftool call")
	fs.Int("metadata-workers", d.Metadata.Workers, "Parallel metadata batches")
	fs.BoolP("dry-run", "n", false, "Show the stacks that would be created without moving anything")
}

// addMergeFlags registers the merge engine flags.
func addMergeFlags(fs *pflag.FlagSet) {
	d := config.Default().Merge
	fs.String("engine", d.Engine, "Helicon Focus executable")
	fs.String("extra-args", d.ExtraArgs, "Additional Helicon Focus arguments")
	fs.Int("radius", d.Radius, "Merge radius (1-8)")
	fs.Int("smoothing", d.Smoothing, "Merge smoothing (0-4)")
	fs.Int("quality", d.JPEGQuality, "JPEG quality (1-100), jpg output only")
	fs.String("format", d.Format, "Output format (jpg, tif, dng)")
	fs.String("output-subdir", d.OutputSubdir, "Output folder created inside each stack")
	fs.Bool("method-a", d.Methods.A, "Run method A (sharp edges)")
	fs.Bool("method-b", d.Methods.B, "Run method B (smooth transitions)")
	fs.Bool("method-c", d.Methods.C, "Run method C (mix)")
	fs.Bool("combine", d.Methods.AB, "Merge the A and B outputs into AB")
}

// =============================================================================
// Commands
// =============================================================================

func newSortCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort <source> [target]",
		Short: "Sort images into numbered stack directories",
		Long:  "Reads capture times, groups shots taken within --interval seconds of each other and moves every group of at least --min-stack-size images into its own directory under target (default: source).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			p, _, err := setup(cmd, opts, pipeline.WithDryRun(dryRun))
			if err != nil {
				return err
			}
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			printBanner("Sort", dryRun)
			sum, err := p.Sort(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			printSortSummary(sum)
			return nil
		},
	}
	addSortFlags(cmd.Flags())
	return cmd
}

func newMergeCommand(opts *rootOptions) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:     "merge <directory>",
		Aliases: []string{"stack"},
		Short:   "Merge every stack directory with Helicon Focus",
		Long:    "Runs the enabled merge methods over each stack directory under <directory>, in stack order. Outputs that already exist are kept. A directory without stacks but with loose images is merged as one stack.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			sel, err := p.SelectStacks(args[0], resume)
			if err != nil {
				return err
			}
			printBanner("Merge", false)
			if sel.Resumed > 0 {
				fmt.Printf("Skipping %d already processed stack(s)\n", sel.Resumed)
			}
			if len(sel.Dirs) == 0 {
				fmt.Println("No stacks to merge.")
				return nil
			}
			if sel.Loose {
				log.Info("no stack directories found, merging loose images", "dir", sel.Dirs[0])
			}
			sum, err := p.Merge(cmd.Context(), sel.Dirs)
			if err != nil {
				return err
			}
			printMergeSummary(sum)
			return nil
		},
	}
	addMergeFlags(cmd.Flags())
	cmd.Flags().BoolVar(&resume, "resume", false, "Skip stacks that already hold every enabled output")
	return cmd
}

func newSortAndMergeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sort-and-merge <source> [target]",
		Short: "Sort images into stacks, then merge each new stack",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			p, _, err := setup(cmd, opts, pipeline.WithDryRun(dryRun))
			if err != nil {
				return err
			}
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			printBanner("Sort and merge", dryRun)
			sum, err := p.SortAndMerge(cmd.Context(), args[0], target)
			if sum.Sort.Source != "" {
				printSortSummary(sum.Sort)
			}
			if len(sum.Merge.Reports) > 0 || sum.Merge.FailedStacks > 0 {
				printMergeSummary(sum.Merge)
			}
			return err
		},
	}
	addSortFlags(cmd.Flags())
	addMergeFlags(cmd.Flags())
	return cmd
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.Write(path, config.Default(), force); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Prints the configuration after applying the config file, FOCUS_STACKER_* environment variables and flags.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	addSortFlags(showCmd.Flags())
	addMergeFlags(showCmd.Flags())

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
