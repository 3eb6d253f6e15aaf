// Package media describes the image files focus-stacker works on: which
// extensions count as camera images, how sidecars are named, and how a
// source directory is scanned for them.
package media

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Class is the closed set of image format classes.
type Class int

const (
	// Raw is a camera RAW file.
	Raw Class = iota + 1
	// Standard is a processed raster format (JPEG, TIFF, PNG).
	Standard
)

// String returns the class name as shown in scan reports.
func (c Class) String() string {
	switch c {
	case Raw:
		return "RAW"
	case Standard:
		return "STANDARD"
	default:
		return "UNKNOWN"
	}
}

// SidecarExt is the extension of metadata sidecars that travel with an image.
const SidecarExt = ".xmp"

// rawExts contains supported camera RAW extensions.
var rawExts = map[string]bool{
	".orf": true, // Olympus
	".nef": true, // Nikon
	".cr2": true, // Canon
	".arw": true, // Sony
	".rw2": true, // Panasonic
	".raf": true, // Fujifilm
	".dng": true, // Adobe Digital Negative
}

// standardExts contains supported processed image extensions.
var standardExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
	".png":  true,
}

// ClassOf returns the format class for a file name. The match is
// case-insensitive; ok is false for unsupported extensions.
func ClassOf(name string) (Class, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case rawExts[ext]:
		return Raw, true
	case standardExts[ext]:
		return Standard, true
	}
	return 0, false
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	_, ok := ClassOf(name)
	return ok
}

// IsSidecar reports whether name is a sidecar file.
func IsSidecar(name string) bool {
	return strings.EqualFold(filepath.Ext(name), SidecarExt)
}

// Extensions returns every supported extension of a class, sorted.
func Extensions(c Class) []string {
	var src map[string]bool
	switch c {
	case Raw:
		src = rawExts
	case Standard:
		src = standardExts
	}
	exts := make([]string, 0, len(src))
	for ext := range src {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SidecarPath returns the sidecar path that belongs to an image path:
// same directory, same stem, SidecarExt.
func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + SidecarExt
}

// Asset is one image file found by a scan. Taken stays zero until a capture
// timestamp has been read for it.
type Asset struct {
	Path  string
	Class Class
	Taken time.Time
}

// HasTimestamp reports whether a capture timestamp is known.
func (a Asset) HasTimestamp() bool {
	return !a.Taken.IsZero()
}

// WithTimestamp returns a copy of a carrying the given capture time.
func (a Asset) WithTimestamp(t time.Time) Asset {
	a.Taken = t
	return a
}

// Paths returns the paths of assets in order.
func Paths(assets []Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Path
	}
	return out
}
