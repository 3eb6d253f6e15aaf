package stacker

import (
	"os"
	"path/filepath"
	"sort"
)

// FindStacks lists the stack directories directly under root, sorted by
// ordinal.
func FindStacks(root string, namer Namer) ([]*Stack, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var stacks []*Stack
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ord, ok := namer.Ordinal(e.Name())
		if !ok {
			continue
		}
		stacks = append(stacks, &Stack{Ordinal: ord, Name: e.Name(), Dir: filepath.Join(root, e.Name())})
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].Ordinal < stacks[j].Ordinal })
	return stacks, nil
}
