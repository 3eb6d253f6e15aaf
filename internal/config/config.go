// Package config holds the focus-stacker configuration: defaults, viper
// loading from flags, environment and file, validation, and yaml output.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"

	"focus-stacker/internal/cluster"
	"focus-stacker/internal/merge"
	"focus-stacker/internal/stacker"
)

// Metadata backends.
const (
	BackendExifTool = "exiftool"
	BackendGoExif   = "goexif"
)

// DefaultEngine is where Helicon Focus installs on macOS.
const DefaultEngine = "/Applications/HeliconFocus.app/Contents/MacOS/HeliconFocus"

// Config is the complete run configuration. It is loaded once and passed
// by value; nothing reads configuration globally.
type Config struct {
	Sorter   SorterConfig   `yaml:"sorter" mapstructure:"sorter"`
	Metadata MetadataConfig `yaml:"metadata" mapstructure:"metadata"`
	Merge    MergeConfig    `yaml:"merge" mapstructure:"merge"`
}

// SorterConfig controls clustering and stack creation.
type SorterConfig struct {
	// Interval is the largest gap in seconds between consecutive shots of
	// one stack.
	Interval float64 `yaml:"interval" mapstructure:"interval"`

	// MinStackSize is the smallest cluster kept as a stack.
	MinStackSize int `yaml:"min_stack_size" mapstructure:"min_stack_size"`

	// NameFormat is a printf format with one integer verb, e.g. Stack_%03d.
	NameFormat string `yaml:"name_format" mapstructure:"name_format"`

	// Recursive scans sub-directories of the source.
	Recursive bool `yaml:"recursive" mapstructure:"recursive"`

	// MoveSidecars moves same-stem .xmp files along with their image.
	MoveSidecars bool `yaml:"move_sidecars" mapstructure:"move_sidecars"`

	// Workers is the size of the file move pool.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Report writes a CSV of every planned move into the target directory.
	Report bool `yaml:"report" mapstructure:"report"`

	// CleanupEmptyDirs removes source directories left empty after sorting.
	CleanupEmptyDirs bool `yaml:"cleanup_empty_dirs" mapstructure:"cleanup_empty_dirs"`
}

// MetadataConfig controls capture time extraction.
type MetadataConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	Binary     string `yaml:"binary" mapstructure:"binary"`
	Tag        string `yaml:"tag" mapstructure:"tag"`
	DateFormat string `yaml:"date_format" mapstructure:"date_format"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
}

// MergeConfig controls the external merge engine.
type MergeConfig struct {
	// Engine is the Helicon Focus executable.
	Engine string `yaml:"engine" mapstructure:"engine"`

	// ExtraArgs are appended to every engine call, split like a shell would.
	ExtraArgs string `yaml:"extra_args" mapstructure:"extra_args"`

	Radius       int    `yaml:"radius" mapstructure:"radius"`
	Smoothing    int    `yaml:"smoothing" mapstructure:"smoothing"`
	JPEGQuality  int    `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	Format       string `yaml:"format" mapstructure:"format"`
	OutputSubdir string `yaml:"output_subdir" mapstructure:"output_subdir"`

	Methods MethodsConfig `yaml:"methods" mapstructure:"methods"`
}

// MethodsConfig switches the merge methods on and off.
type MethodsConfig struct {
	A  bool `yaml:"a" mapstructure:"a"`
	B  bool `yaml:"b" mapstructure:"b"`
	C  bool `yaml:"c" mapstructure:"c"`
	AB bool `yaml:"ab" mapstructure:"ab"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sorter: SorterConfig{
			Interval:     1.0,
			MinStackSize: 2,
			NameFormat:   stacker.DefaultNameFormat,
			MoveSidecars: true,
			Workers:      4,
			Report:       true,
		},
		Metadata: MetadataConfig{
			Backend:    BackendExifTool,
			Binary:     "exiftool",
			Tag:        "DateTimeOriginal",
			DateFormat: "%Y:%m:%d %H:%M:%S",
			BatchSize:  100,
			Workers:    4,
		},
		Merge: MergeConfig{
			Engine:       DefaultEngine,
			Radius:       3,
			Smoothing:    1,
			JPEGQuality:  95,
			Format:       merge.FormatDNG,
			OutputSubdir: "stacked",
			Methods:      MethodsConfig{A: true, B: true, AB: true},
		},
	}
}

// ValidationError reports one configuration value out of range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every value and returns the first problem found.
func (c Config) Validate() error {
	s := c.Sorter
	if s.Interval <= 0 {
		return invalid("sorter.interval", "must be greater than 0, got %g", s.Interval)
	}
	if s.MinStackSize < 1 {
		return invalid("sorter.min_stack_size", "must be at least 1, got %d", s.MinStackSize)
	}
	if _, err := stacker.NewNamer(s.NameFormat); err != nil {
		return invalid("sorter.name_format", "is unusable: %v", err)
	}
	if s.Workers < 1 {
		return invalid("sorter.workers", "must be at least 1, got %d", s.Workers)
	}

	m := c.Metadata
	if m.Backend != BackendExifTool && m.Backend != BackendGoExif {
		return invalid("metadata.backend", "must be %s or %s, got %q", BackendExifTool, BackendGoExif, m.Backend)
	}
	if m.Backend == BackendExifTool && m.Binary == "" {
		return invalid("metadata.binary", "must be set for the %s backend", BackendExifTool)
	}
	if m.Tag == "" {
		return invalid("metadata.tag", "must not be empty")
	}
	if m.DateFormat == "" {
		return invalid("metadata.date_format", "must not be empty")
	}
	if m.BatchSize < 1 {
		return invalid("metadata.batch_size", "must be at least 1, got %d", m.BatchSize)
	}
	if m.Workers < 1 {
		return invalid("metadata.workers", "must be at least 1, got %d", m.Workers)
	}

	g := c.Merge
	if g.Engine == "" {
		return invalid("merge.engine", "must not be empty")
	}
	if _, err := g.Args(); err != nil {
		return invalid("merge.extra_args", "cannot be parsed: %v", err)
	}
	if err := g.Settings().Validate(); err != nil {
		return invalid("merge", "%v", err)
	}
	return nil
}

// IntervalDuration returns the stack interval as a duration.
func (s SorterConfig) IntervalDuration() time.Duration {
	return cluster.Interval(s.Interval)
}

// Args splits ExtraArgs into engine arguments.
func (g MergeConfig) Args() ([]string, error) {
	if strings.TrimSpace(g.ExtraArgs) == "" {
		return nil, nil
	}
	return shellwords.Parse(g.ExtraArgs)
}

// Settings returns the engine parameters for the merge orchestrator.
func (g MergeConfig) Settings() merge.Settings {
	return merge.Settings{
		Radius:       g.Radius,
		Smoothing:    g.Smoothing,
		JPEGQuality:  g.JPEGQuality,
		Format:       strings.ToLower(g.Format),
		OutputSubdir: g.OutputSubdir,
		MethodA:      g.Methods.A,
		MethodB:      g.Methods.B,
		MethodC:      g.Methods.C,
		Combination:  g.Methods.AB,
	}
}

// expandPaths resolves a leading ~ in the configured executables.
func (c *Config) expandPaths() error {
	var err error
	if c.Merge.Engine, err = homedir.Expand(c.Merge.Engine); err != nil {
		return fmt.Errorf("expand merge.engine: %w", err)
	}
	if c.Metadata.Binary, err = homedir.Expand(c.Metadata.Binary); err != nil {
		return fmt.Errorf("expand metadata.binary: %w", err)
	}
	return nil
}
