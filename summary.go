package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"focus-stacker/internal/pipeline"
)

// =============================================================================
// Output
// =============================================================================

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	bad     = color.New(color.FgRed)
	dim     = color.New(color.FgHiBlack)
)

// printBanner prints the command title.
func printBanner(title string, dryRun bool) {
	fmt.Println(strings.Repeat("=", 50))
	heading.Println("Focus Stacker - " + title)
	fmt.Println(strings.Repeat("=", 50))
	if dryRun {
		warn.Println("[DRY RUN MODE - nothing will be moved]")
	}
	fmt.Println()
}

// count renders n with thousands separators, coloured by c when non-zero.
func count(n int, c *color.Color) string {
	s := humanize.Comma(int64(n))
	if n == 0 || c == nil {
		return s
	}
	return c.Sprint(s)
}

// printSortSummary prints the counts of a sort run.
func printSortSummary(s pipeline.SortSummary) {
	fmt.Printf("Source:  %s\n", s.Source)
	if s.Target != s.Source {
		fmt.Printf("Target:  %s\n", s.Target)
	}
	fmt.Printf("Found:   %s images", count(s.Found(), nil))
	if s.Found() > 0 {
		fmt.Printf(" (%s)", s.Scan.Summary())
	}
	fmt.Println()
	if s.Found() == 0 {
		return
	}
	fmt.Printf("Usable:  %s with capture time, %s without\n",
		count(s.Timestamped, nil), count(s.Found()-s.Timestamped, warn))
	if s.FailedBatches > 0 {
		fmt.Printf("         %s of %d metadata batches failed\n", count(s.FailedBatches, bad), s.Batches)
	}
	fmt.Printf("Stacks:  %s (%s groups too small, %s images left in place)\n",
		count(len(s.Stacks.Stacks), good), count(s.Clusters.Discarded, nil), count(s.Clusters.DiscardedFiles, nil))

	if s.Stacks.DryRun {
		for _, st := range s.Stacks.Stacks {
			fmt.Printf("  [DRY RUN] %s <- %d images\n", st.Name, st.Planned)
		}
	} else if len(s.Stacks.Stacks) > 0 {
		fmt.Printf("Moved:   %s/%s files, %s sidecars, %s\n",
			count(s.Stacks.Moved, good), count(s.Stacks.Planned, nil),
			count(s.Stacks.SidecarsMoved, nil), humanize.Bytes(uint64(s.Stacks.Bytes)))
		if s.Stacks.Failed > 0 {
			fmt.Printf("Failed:  %s moves\n", count(s.Stacks.Failed, bad))
			for _, err := range s.Stacks.Errors {
				bad.Printf("  %v\n", err)
			}
		}
		for _, st := range s.Stacks.Stacks {
			line := fmt.Sprintf("  %s  %d images", st.Name, st.Moved)
			if st.Partial() {
				warn.Printf("%s (%d of %d moved)\n", line, st.Moved, st.Planned)
				continue
			}
			fmt.Println(line)
		}
	}
	if s.Report != "" {
		fmt.Printf("Report:  %s\n", s.Report)
	}
	if s.RemovedDirs > 0 {
		fmt.Printf("Removed: %d empty folders\n", s.RemovedDirs)
	}
	dim.Printf("Elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
}

// printMergeSummary prints the per-stack outcome of a merge run.
func printMergeSummary(s pipeline.MergeSummary) {
	fmt.Println()
	for _, rep := range s.Reports {
		fmt.Printf("%s:", rep.Stack)
		if len(rep.Generated) > 0 {
			good.Printf(" generated %s", strings.Join(rep.Generated, ","))
		}
		if len(rep.Reused) > 0 {
			fmt.Printf(" kept %s", strings.Join(rep.Reused, ","))
		}
		if len(rep.Failed) > 0 {
			bad.Printf(" failed %s", strings.Join(rep.Failed, ","))
		}
		if len(rep.Skipped) > 0 {
			warn.Printf(" skipped %s", strings.Join(rep.Skipped, ","))
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Printf("Stacks:    %s merged", count(len(s.Reports), good))
	if s.FailedStacks > 0 {
		fmt.Printf(", %s unreadable", count(s.FailedStacks, bad))
	}
	fmt.Println()
	fmt.Printf("Methods:   %s generated, %s kept, %s failed, %s skipped\n",
		count(s.Generated, good), count(s.Reused, nil), count(s.Failed, bad), count(s.Skipped, warn))
	fmt.Printf("Combined:  %s\n", count(s.Combined, nil))
	if len(s.Outputs) > 0 {
		fmt.Println("Outputs:")
		for _, out := range s.Outputs {
			fmt.Printf("  %s\n", filepath.Join(filepath.Base(filepath.Dir(filepath.Dir(out))), filepath.Base(filepath.Dir(out)), filepath.Base(out)))
		}
	}
	if s.Failed > 0 || s.FailedStacks > 0 {
		warn.Println("Re-run the same command to retry the failed methods.")
	}
	dim.Printf("Elapsed:   %s\n", s.Elapsed.Round(time.Millisecond))
}
