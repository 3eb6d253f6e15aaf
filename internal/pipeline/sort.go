package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"focus-stacker/internal/cluster"
	"focus-stacker/internal/media"
	"focus-stacker/internal/metadata"
	"focus-stacker/internal/stacker"
)

// SortSummary holds the counts of one sort run.
type SortSummary struct {
	Source string
	Target string

	Scan media.ScanResult
	// Timestamped is the number of images with a usable capture time.
	Timestamped   int
	Batches       int
	FailedBatches int

	Clusters cluster.Result
	Stacks   stacker.Result

	// Report is the CSV written, empty when none was.
	Report string
	// RemovedDirs counts source directories removed as empty.
	RemovedDirs int
	Elapsed     time.Duration
}

// Found is the number of supported images discovered.
func (s SortSummary) Found() int { return len(s.Scan.Assets) }

// Sort groups the images under source into stack directories under target.
// An empty target sorts in place. Per-file problems are counted in the
// summary; only an unusable source, target or metadata tool is an error.
func (p *Pipeline) Sort(ctx context.Context, source, target string) (sum SortSummary, err error) {
	start := time.Now()
	defer func() { sum.Elapsed = time.Since(start) }()

	src, err := filepath.Abs(source)
	if err != nil {
		return sum, &ResourceError{Op: "resolve source", Path: source, Err: err}
	}
	if target == "" {
		target = src
	}
	dst, err := filepath.Abs(target)
	if err != nil {
		return sum, &ResourceError{Op: "resolve target", Path: target, Err: err}
	}
	sum.Source, sum.Target = src, dst
	log := p.log.WithValues("source", src)

	scan, err := media.Scan(src, media.ScanOptions{Recursive: p.cfg.Sorter.Recursive, SkipDir: p.skipDir})
	if err != nil {
		return sum, &ResourceError{Op: "scan", Path: src, Err: err}
	}
	sum.Scan = scan
	log.Info("scan complete", "images", len(scan.Assets), "raw", scan.Count(media.Raw), "standard", scan.Count(media.Standard), "sidecars", scan.Sidecars)
	if len(scan.Assets) == 0 {
		return sum, nil
	}

	if err := requireBinary("metadata tool", p.metadataBinary); err != nil {
		return sum, err
	}
	reader := metadata.NewBatchReader(p.extractor, p.metaPool, p.cfg.Metadata.BatchSize, p.log.WithName("metadata"))
	meta, err := reader.Read(ctx, media.Paths(scan.Assets))
	if err != nil {
		return sum, err
	}
	sum.Batches, sum.FailedBatches = meta.Batches, meta.FailedBatches

	assets := make([]media.Asset, len(scan.Assets))
	for i, a := range scan.Assets {
		if t, ok := meta.Times[a.Path]; ok {
			a = a.WithTimestamp(t)
			sum.Timestamped++
		}
		assets[i] = a
	}
	log.Info("capture times read", "timestamped", sum.Timestamped, "without", len(assets)-sum.Timestamped, "failedBatches", meta.FailedBatches)

	sum.Clusters = cluster.Build(assets, p.cfg.Sorter.IntervalDuration(), p.cfg.Sorter.MinStackSize)
	log.Info("clustering complete", "stacks", len(sum.Clusters.Clusters), "discarded", sum.Clusters.Discarded, "discardedFiles", sum.Clusters.DiscardedFiles)
	if len(sum.Clusters.Clusters) == 0 {
		return sum, nil
	}

	first := 1
	if existing, err := stacker.FindStacks(dst, p.namer); err == nil && len(existing) > 0 {
		first = existing[len(existing)-1].Ordinal + 1
		log.Info("continuing stack numbering", "first", p.namer.Name(first))
	}
	if !p.dryRun {
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return sum, &ResourceError{Op: "create target", Path: dst, Err: err}
		}
	}

	m := stacker.New(stacker.Options{
		Root:         dst,
		Namer:        p.namer,
		MoveSidecars: p.cfg.Sorter.MoveSidecars,
		DryRun:       p.dryRun,
		FirstOrdinal: first,
	}, p.movePool, p.log.WithName("stacker"))
	sum.Stacks, err = m.Materialize(ctx, sum.Clusters.Clusters)
	if err != nil {
		if ctx.Err() != nil {
			return sum, err
		}
		return sum, &ResourceError{Op: "materialize", Path: dst, Err: err}
	}
	if p.dryRun {
		return sum, nil
	}

	if p.cfg.Sorter.Report {
		path := filepath.Join(dst, stacker.ReportFile)
		if err := stacker.WriteReport(path, sum.Stacks); err != nil {
			log.Error(err, "could not write report", "path", path)
		} else {
			sum.Report = path
		}
	}
	if p.cfg.Sorter.CleanupEmptyDirs {
		n, err := stacker.CleanupEmptyDirs(src, p.skipDir)
		if err != nil {
			log.Error(err, "cleanup of empty directories failed")
		}
		sum.RemovedDirs = n
	}
	return sum, nil
}

// String renders a one-line summary for logs.
func (s SortSummary) String() string {
	return fmt.Sprintf("%d images, %d timestamped, %d stacks, %d/%d moved",
		s.Found(), s.Timestamped, len(s.Stacks.Stacks), s.Stacks.Moved, s.Stacks.Planned)
}
