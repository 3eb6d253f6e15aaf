package media

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skipFolders contains directory names never descended into. These are
// system folders or camera-specific directories that hold no user photos.
var skipFolders = map[string]bool{
	".stfolder":       true, // Syncthing
	".fseventsd":      true, // macOS filesystem events
	".Trashes":        true, // macOS trash
	".Spotlight-V100": true, // macOS Spotlight index
	"PRIVATE":         true, // Camera system folder
	"AVF_INFO":        true, // Sony AVCHD info
	"THMBNL":          true, // Sony thumbnails
}

// Ignored reports whether a directory name is never descended into: hidden
// folders and the names in skipFolders.
func Ignored(name string) bool {
	return strings.HasPrefix(name, ".") || skipFolders[name]
}

// ScanOptions controls Scan.
type ScanOptions struct {
	// Recursive descends into sub-directories.
	Recursive bool
	// SkipDir, when set, is consulted for every sub-directory name; returning
	// true prunes it.
	SkipDir func(name string) bool
}

// ScanResult is the outcome of scanning one directory tree.
type ScanResult struct {
	// Assets in discovery order (lexical walk order).
	Assets []Asset
	// ByExt counts images per lower-case extension.
	ByExt map[string]int
	// Sidecars counts sidecar files seen.
	Sidecars int
}

// Count returns how many images per class were found.
func (r ScanResult) Count(c Class) int {
	n := 0
	for _, a := range r.Assets {
		if a.Class == c {
			n++
		}
	}
	return n
}

// Summary renders per-extension counts, e.g. "12x .nef, 3x .jpg", grouped
// by class.
func (r ScanResult) Summary() string {
	var parts []string
	for _, c := range []Class{Raw, Standard} {
		for _, ext := range Extensions(c) {
			if n := r.ByExt[ext]; n > 0 {
				parts = append(parts, fmt.Sprintf("%dx %s", n, ext))
			}
		}
	}
	return strings.Join(parts, ", ")
}

// Scan walks root and returns every supported image in it. Hidden files and
// folders and the folders in skipFolders are ignored. Unreadable entries
// below root are skipped; only a missing or unreadable root is an error.
func Scan(root string, opts ScanOptions) (ScanResult, error) {
	res := ScanResult{ByExt: map[string]int{}}

	info, err := os.Stat(root)
	if err != nil {
		return res, err
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%s is not a directory", root)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip errors, continue walking
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive || Ignored(name) {
				return filepath.SkipDir
			}
			if opts.SkipDir != nil && opts.SkipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if IsSidecar(name) {
			res.Sidecars++
			return nil
		}
		class, ok := ClassOf(name)
		if !ok {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		res.Assets = append(res.Assets, Asset{Path: abs, Class: class})
		res.ByExt[strings.ToLower(filepath.Ext(name))]++
		return nil
	})
	return res, err
}

// ListImages returns the absolute paths of the supported images directly
// inside dir (not recursive), sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if IsImage(e.Name()) {
			out = append(out, filepath.Join(abs, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
