// Package pipeline wires scanning, metadata extraction, clustering, stack
// creation and merging into the flows behind each command.
package pipeline

import (
	"fmt"
	"os/exec"

	"github.com/go-logr/logr"

	"focus-stacker/internal/config"
	"focus-stacker/internal/merge"
	"focus-stacker/internal/metadata"
	"focus-stacker/internal/stacker"
	"focus-stacker/internal/workpool"
)

// ResourceError reports a missing or unusable directory or executable. It
// stops the operation it blocks.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces the configured metadata backend.
func WithExtractor(ex metadata.Extractor) Option {
	return func(p *Pipeline) { p.extractor = ex }
}

// WithEngine replaces the Helicon Focus engine.
func WithEngine(e merge.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// WithDryRun plans stacks without touching the filesystem.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

// Pipeline owns the worker pools for the lifetime of a command.
type Pipeline struct {
	cfg   config.Config
	log   logr.Logger
	namer stacker.Namer

	metaPool *workpool.Pool
	movePool *workpool.Pool

	extractor metadata.Extractor
	engine    merge.Engine
	dryRun    bool

	// Executables checked before use; empty when a replacement was injected.
	metadataBinary string
	engineBinary   string
}

// New builds a Pipeline from a validated configuration.
func New(cfg config.Config, log logr.Logger, opts ...Option) (*Pipeline, error) {
	namer, err := stacker.NewNamer(cfg.Sorter.NameFormat)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		log:      log,
		namer:    namer,
		metaPool: workpool.New("metadata", cfg.Metadata.Workers),
		movePool: workpool.New("move", cfg.Sorter.Workers),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.extractor == nil {
		switch cfg.Metadata.Backend {
		case config.BackendGoExif:
			p.extractor = &metadata.GoExif{Tag: cfg.Metadata.Tag, Log: log.WithName("goexif")}
		default:
			p.extractor = &metadata.ExifTool{
				Binary:     cfg.Metadata.Binary,
				Tag:        cfg.Metadata.Tag,
				DateFormat: cfg.Metadata.DateFormat,
				Log:        log.WithName("exiftool"),
			}
			p.metadataBinary = cfg.Metadata.Binary
		}
	}
	if p.engine == nil {
		extra, err := cfg.Merge.Args()
		if err != nil {
			return nil, err
		}
		p.engine = &merge.Helicon{Path: cfg.Merge.Engine, ExtraArgs: extra, Log: log.WithName("helicon")}
		p.engineBinary = cfg.Merge.Engine
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() config.Config { return p.cfg }

// Namer returns the stack name format in use.
func (p *Pipeline) Namer() stacker.Namer { return p.namer }

// skipDir prunes existing stacks and merge output folders from scans.
func (p *Pipeline) skipDir(name string) bool {
	return name == p.cfg.Merge.OutputSubdir || p.namer.Matches(name)
}

// requireBinary resolves an executable by path or on PATH.
func requireBinary(op, bin string) error {
	if bin == "" {
		return nil
	}
	if _, err := exec.LookPath(bin); err != nil {
		return &ResourceError{Op: op, Path: bin, Err: err}
	}
	return nil
}
