package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"focus-stacker/internal/media"
	"focus-stacker/internal/merge"
	"focus-stacker/internal/stacker"
)

// MergeSummary holds the counts of one merge run.
type MergeSummary struct {
	Reports []merge.Report
	// FailedStacks counts stacks whose directory could not be processed.
	FailedStacks int

	Reused    int
	Generated int
	Failed    int
	Skipped   int
	Combined  int
	Outputs   []string
	Errors    []error
	Elapsed   time.Duration
}

func (s *MergeSummary) add(rep merge.Report) {
	s.Reports = append(s.Reports, rep)
	s.Reused += len(rep.Reused)
	s.Generated += len(rep.Generated)
	s.Failed += len(rep.Failed)
	s.Skipped += len(rep.Skipped)
	if rep.Combined {
		s.Combined++
	}
	s.Outputs = append(s.Outputs, rep.Outputs...)
	s.Errors = append(s.Errors, rep.Errors...)
}

// Orchestrator returns the merge orchestrator for the configured engine.
func (p *Pipeline) Orchestrator() *merge.Orchestrator {
	return merge.NewOrchestrator(p.cfg.Merge.Settings(), p.engine, p.log.WithName("merge"))
}

// Merge runs the enabled merge methods over stackDirs one at a time, in the
// given order. A missing engine executable is an error; a stack that cannot
// be processed is logged and counted.
func (p *Pipeline) Merge(ctx context.Context, stackDirs []string) (sum MergeSummary, err error) {
	start := time.Now()
	defer func() { sum.Elapsed = time.Since(start) }()

	if len(stackDirs) == 0 {
		return sum, nil
	}
	if err := requireBinary("merge engine", p.engineBinary); err != nil {
		return sum, err
	}

	o := p.Orchestrator()
	for i, dir := range stackDirs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		p.log.Info("processing stack", "stack", filepath.Base(dir), "index", i+1, "of", len(stackDirs))
		rep, err := o.Process(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return sum, err
			}
			p.log.Error(err, "stack could not be merged", "stack", dir)
			sum.FailedStacks++
			sum.Errors = append(sum.Errors, err)
			continue
		}
		sum.add(rep)
	}
	return sum, nil
}

// Selection is the set of stack directories chosen for merging.
type Selection struct {
	Dirs []string
	// Resumed counts stacks left out because they were already processed.
	Resumed int
	// Loose is set when root holds no stacks and its own images were taken
	// as a single stack.
	Loose bool
}

// SelectStacks lists the stack directories under root in ordinal order.
// With resume, stacks that already hold every enabled output are left out. When root holds no stacks but at least two images, root itself is
// selected.
func (p *Pipeline) SelectStacks(root string, resume bool) (Selection, error) {
	var sel Selection
	abs, err := filepath.Abs(root)
	if err != nil {
		return sel, &ResourceError{Op: "resolve", Path: root, Err: err}
	}
	stacks, err := stacker.FindStacks(abs, p.namer)
	if err != nil {
		return sel, &ResourceError{Op: "read", Path: abs, Err: err}
	}

	var candidates []string
	for _, s := range stacks {
		candidates = append(candidates, s.Dir)
	}
	if len(candidates) == 0 {
		images, err := media.ListImages(abs)
		if err != nil {
			return sel, &ResourceError{Op: "read", Path: abs, Err: err}
		}
		if len(images) < 2 {
			return sel, nil
		}
		candidates = []string{abs}
		sel.Loose = true
	}

	o := p.Orchestrator()
	for _, dir := range candidates {
		if resume && o.Done(dir) {
			sel.Resumed++
			continue
		}
		sel.Dirs = append(sel.Dirs, dir)
	}
	return sel, nil
}

// Summary is the outcome of SortAndMerge.
type Summary struct {
	Sort  SortSummary
	Merge MergeSummary
}

// SortAndMerge sorts source into stacks and merges every stack created.
// Stacks with failed moves are merged from whatever images arrived.
func (p *Pipeline) SortAndMerge(ctx context.Context, source, target string) (Summary, error) {
	var sum Summary
	var err error
	sum.Sort, err = p.Sort(ctx, source, target)
	if err != nil {
		return sum, err
	}
	p.log.Info("sort finished", "summary", sum.Sort.String())
	if p.dryRun {
		return sum, nil
	}

	var dirs []string
	for _, s := range sum.Sort.Stacks.Stacks {
		if s.Moved == 0 {
			p.log.Info("no files arrived, not merging", "stack", s.Name)
			continue
		}
		if s.Partial() {
			p.log.Info("merging partially moved stack", "stack", s.Name, "moved", s.Moved, "planned", s.Planned)
		}
		dirs = append(dirs, s.Dir)
	}
	sum.Merge, err = p.Merge(ctx, dirs)
	return sum, err
}
