// Package stacker turns clusters of images into numbered stack directories
// and finds existing ones again.
package stacker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNameFormat names stacks Stack_001, Stack_002, ...
const DefaultNameFormat = "Stack_%03d"

// nameFormatRe accepts a printf format with exactly one integer verb.
var nameFormatRe = regexp.MustCompile(`^([^%]*)%(0?[0-9]*)d([^%]*)$`)

// Namer renders and parses stack directory names.
type Namer struct {
	format string
	prefix string
	suffix string
}

// NewNamer validates a printf-style stack name format such as "Stack_%03d".
func NewNamer(format string) (Namer, error) {
	m := nameFormatRe.FindStringSubmatch(format)
	if m == nil {
		return Namer{}, fmt.Errorf("stack name format %q must contain exactly one integer verb like %%03d", format)
	}
	if strings.ContainsAny(format, `/\`) {
		return Namer{}, fmt.Errorf("stack name format %q must not contain path separators", format)
	}
	if m[1] == "" && m[3] == "" {
		return Namer{}, fmt.Errorf("stack name format %q needs a prefix or suffix", format)
	}
	return Namer{format: format, prefix: m[1], suffix: m[3]}, nil
}

// MustNamer is NewNamer for formats known to be valid.
func MustNamer(format string) Namer {
	n, err := NewNamer(format)
	if err != nil {
		panic(err)
	}
	return n
}

// Format returns the format string.
func (n Namer) Format() string { return n.format }

// Name renders the directory name for a 1-based ordinal.
func (n Namer) Name(ordinal int) string {
	return fmt.Sprintf(n.format, ordinal)
}

// Ordinal parses a directory name back into its ordinal. ok is false when
// name was not produced by this Namer.
func (n Namer) Ordinal(name string) (int, bool) {
	if !strings.HasPrefix(name, n.prefix) || !strings.HasSuffix(name, n.suffix) {
		return 0, false
	}
	digits := name[len(n.prefix) : len(name)-len(n.suffix)]
	if digits == "" || strings.Trim(digits, "0123456789") != "" {
		return 0, false
	}
	ord, err := strconv.Atoi(digits)
	if err != nil || ord < 1 || n.Name(ord) != name {
		return 0, false
	}
	return ord, true
}

// Matches reports whether name is a stack directory name.
func (n Namer) Matches(name string) bool {
	_, ok := n.Ordinal(name)
	return ok
}
