package stacker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"focus-stacker/internal/cluster"
	"focus-stacker/internal/media"
	"focus-stacker/internal/workpool"
)

// errNotAttempted marks entries whose move never started.
var errNotAttempted = errors.New("move not attempted")

// Options configures a Materializer.
type Options struct {
	// Root is the directory stack directories are created in.
	Root string
	// Namer renders stack directory names.
	Namer Namer
	// MoveSidecars moves the .xmp sidecar of each image along with it.
	MoveSidecars bool
	// DryRun plans stacks without creating directories or moving files.
	DryRun bool
	// FirstOrdinal numbers the first stack; zero means 1.
	FirstOrdinal int
}

// Entry is one planned image relocation and its outcome.
type Entry struct {
	Asset   media.Asset
	Dest    string
	Sidecar string
	Bytes   int64
	Err     error

	// SidecarErr is set when the image moved but its sidecar did not.
	SidecarErr error

	// sidecarSrc is the sidecar claimed for this entry while planning.
	sidecarSrc string
}

// Stack is one materialised stack directory.
type Stack struct {
	Ordinal int
	Name    string
	Dir     string
	Entries []Entry

	Planned       int
	Moved         int
	SidecarsMoved int
	Failed        int // failed image and sidecar moves
	Bytes         int64
}

// Partial reports whether some planned images failed to move.
func (s *Stack) Partial() bool { return s.Moved < s.Planned }

// Result summarises a Materialize call.
type Result struct {
	Stacks        []*Stack
	Planned       int
	Moved         int
	SidecarsMoved int
	Failed        int
	Bytes         int64
	Errors        []error
	DryRun        bool
}

// Dirs returns the stack directories in ordinal order.
func (r Result) Dirs() []string {
	out := make([]string, len(r.Stacks))
	for i, s := range r.Stacks {
		out[i] = s.Dir
	}
	return out
}

// Materializer creates stack directories and moves cluster members into
// them.
type Materializer struct {
	opts Options
	pool *workpool.Pool
	log  logr.Logger
}

// New returns a Materializer moving files on pool.
func New(opts Options, pool *workpool.Pool, log logr.Logger) *Materializer {
	return &Materializer{opts: opts, pool: pool, log: log}
}

// Materialize creates one directory per cluster, numbered from
// FirstOrdinal in cluster order, then moves every member on the worker pool. All directories exist
// before the first move starts. A failed directory creation aborts with an
// error; failed moves are counted in the result and never stop the others.
func (m *Materializer) Materialize(ctx context.Context, clusters []cluster.Cluster) (Result, error) {
	res := Result{DryRun: m.opts.DryRun}

	type job struct {
		stack *Stack
		index int
	}
	var jobs []job

	// A RAW+JPEG pair shares one sidecar; the first image of the pair
	// takes it.
	claimed := map[string]bool{}

	first := m.opts.FirstOrdinal
	if first < 1 {
		first = 1
	}
	for i, c := range clusters {
		name := m.opts.Namer.Name(first + i)
		s := &Stack{
			Ordinal: first + i,
			Name:    name,
			Dir:     filepath.Join(m.opts.Root, name),
			Entries: make([]Entry, len(c.Assets)),
			Planned: len(c.Assets),
		}
		if !m.opts.DryRun {
			if err := os.MkdirAll(s.Dir, 0o755); err != nil {
				return res, fmt.Errorf("create stack directory %s: %w", s.Dir, err)
			}
		}
		for j, a := range c.Assets {
			s.Entries[j] = Entry{Asset: a, Dest: filepath.Join(s.Dir, filepath.Base(a.Path))}
			if !m.opts.DryRun {
				s.Entries[j].Err = errNotAttempted
				if sc, ok := m.claimSidecar(a.Path, claimed); ok {
					s.Entries[j].sidecarSrc = sc
				}
			}
			jobs = append(jobs, job{stack: s, index: j})
		}
		res.Stacks = append(res.Stacks, s)
		res.Planned += s.Planned
	}

	if m.opts.DryRun {
		return res, nil
	}

	// Each job owns exactly one Entry slot, so no locking is needed.
	err := m.pool.Run(ctx, len(jobs), func(ctx context.Context, i int) {
		j := jobs[i]
		e := &j.stack.Entries[j.index]
		e.Err = nil
		if err := ctx.Err(); err != nil {
			e.Err = err
			return
		}
		dst, n, err := moveInto(e.Asset.Path, j.stack.Dir)
		e.Dest = dst
		if err != nil {
			e.Err = err
			m.log.Error(err, "move failed", "stack", j.stack.Name, "file", e.Asset.Path)
			return
		}
		e.Bytes = n
		if e.sidecarSrc == "" {
			return
		}
		scDst, _, err := moveInto(e.sidecarSrc, j.stack.Dir)
		if err != nil {
			e.SidecarErr = err
			m.log.Error(err, "sidecar move failed", "stack", j.stack.Name, "file", e.sidecarSrc)
			return
		}
		e.Sidecar = scDst
	})

	for _, s := range res.Stacks {
		for _, e := range s.Entries {
			if e.Err != nil {
				s.Failed++
				res.Errors = append(res.Errors, e.Err)
				continue
			}
			s.Moved++
			s.Bytes += e.Bytes
			if e.Sidecar != "" {
				s.SidecarsMoved++
			}
			if e.SidecarErr != nil {
				s.Failed++
				res.Errors = append(res.Errors, e.SidecarErr)
			}
		}
		if s.Partial() {
			m.log.Info("stack only partially moved", "stack", s.Name, "moved", s.Moved, "planned", s.Planned)
		}
		res.Moved += s.Moved
		res.SidecarsMoved += s.SidecarsMoved
		res.Failed += s.Failed
		res.Bytes += s.Bytes
	}
	return res, err
}

// claimSidecar returns the sidecar of path unless another entry has
// already claimed it.
func (m *Materializer) claimSidecar(path string, claimed map[string]bool) (string, bool) {
	if !m.opts.MoveSidecars {
		return "", false
	}
	sc, ok := sidecarFor(path)
	if !ok || claimed[sc] {
		return "", false
	}
	claimed[sc] = true
	return sc, true
}
