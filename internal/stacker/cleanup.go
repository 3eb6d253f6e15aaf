package stacker

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"focus-stacker/internal/media"
)

// CleanupEmptyDirs removes directories below root that are empty apart from
// hidden files such as .DS_Store, deepest first, so a parent emptied by its
// children goes too. Hidden folders and system folders are never entered and
// keep their parent alive, as do directories for which keep returns true.
// It returns how many directories were removed.
func CleanupEmptyDirs(root string, keep func(name string) bool) (int, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if media.Ignored(d.Name()) || (keep != nil && keep(d.Name())) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(os.PathSeparator)) > strings.Count(dirs[j], string(os.PathSeparator))
	})

	removed := 0
	for _, dir := range dirs {
		junk, ok := onlyHiddenFiles(dir)
		if !ok {
			continue
		}
		for _, name := range junk {
			os.Remove(filepath.Join(dir, name))
		}
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}
	return removed, nil
}

// onlyHiddenFiles returns the hidden regular files in dir when nothing else
// is in it. Any sub-directory, hidden or not, makes dir non-empty.
func onlyHiddenFiles(dir string) ([]string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	var junk []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			return nil, false
		}
		junk = append(junk, e.Name())
	}
	return junk, true
}
