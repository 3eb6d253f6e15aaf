// Package merge drives the external focus-merging engine over stack
// directories. Completion is recorded only by the existence of each
// method's output file, so re-running a stack redoes exactly the methods
// whose outputs are still missing.
package merge

import (
	"fmt"
	"strings"
)

// Method is one base merge strategy of the engine.
type Method struct {
	// Name is used in output file names ("A", "B", "C").
	Name string
	// Selector is the engine's numeric method id.
	Selector int
}

// The base methods, in processing order.
var (
	MethodA = Method{Name: "A", Selector: 0} // sharp edges
	MethodB = Method{Name: "B", Selector: 1} // smooth transitions
	MethodC = Method{Name: "C", Selector: 2} // mix of both
)

// Combination names the secondary merge of the A and B outputs. It reuses
// MethodB's selector.
const Combination = "AB"

// BaseMethods returns A, B and C in order.
func BaseMethods() []Method {
	return []Method{MethodA, MethodB, MethodC}
}

// Output formats understood by the engine.
const (
	FormatJPEG = "jpg"
	FormatTIFF = "tif"
	FormatDNG  = "dng"
)

// Formats is the closed set of output formats.
var Formats = []string{FormatJPEG, FormatTIFF, FormatDNG}

// ValidFormat reports whether f is one of Formats.
func ValidFormat(f string) bool {
	for _, known := range Formats {
		if strings.EqualFold(f, known) {
			return true
		}
	}
	return false
}

// Settings is the merge part of the configuration.
type Settings struct {
	Radius      int
	Smoothing   int
	JPEGQuality int
	Format      string
	// OutputSubdir is created inside each stack directory for outputs. Its
	// presence also marks a stack as processed for resume runs.
	OutputSubdir string

	MethodA     bool
	MethodB     bool
	MethodC     bool
	Combination bool
}

// Enabled reports whether a base method is switched on.
func (s Settings) Enabled(m Method) bool {
	switch m.Name {
	case MethodA.Name:
		return s.MethodA
	case MethodB.Name:
		return s.MethodB
	case MethodC.Name:
		return s.MethodC
	}
	return false
}

// Validate checks the engine parameter ranges.
func (s Settings) Validate() error {
	if s.Radius < 1 || s.Radius > 8 {
		return fmt.Errorf("radius must be between 1 and 8, got %d", s.Radius)
	}
	if s.Smoothing < 0 || s.Smoothing > 4 {
		return fmt.Errorf("smoothing must be between 0 and 4, got %d", s.Smoothing)
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", s.JPEGQuality)
	}
	if !ValidFormat(s.Format) {
		return fmt.Errorf("output format must be one of %s, got %q", strings.Join(Formats, ", "), s.Format)
	}
	if s.OutputSubdir == "" || strings.ContainsAny(s.OutputSubdir, `/\`) {
		return fmt.Errorf("output subdirectory must be a plain directory name, got %q", s.OutputSubdir)
	}
	return nil
}

// isJPEG reports whether outputs are JPEG files, the only format taking a
// quality parameter.
func (s Settings) isJPEG() bool {
	return strings.EqualFold(s.Format, FormatJPEG)
}
