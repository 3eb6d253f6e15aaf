// Package metadata reads capture timestamps from image files, either by
// running exiftool over batches of paths or by decoding EXIF in-process.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/ncruces/go-strftime"
)

// Extractor reads capture timestamps for one batch of paths. The returned
// map is keyed by the input paths; paths without a usable timestamp are
// absent. An error means the whole batch failed.
type Extractor interface {
	Extract(ctx context.Context, paths []string) (map[string]time.Time, error)
}

// DefaultBinary is the exiftool executable looked up on PATH.
const DefaultBinary = "exiftool"

// ExifTool runs the exiftool command line once per batch with JSON output.
type ExifTool struct {
	// Binary is the exiftool executable (default "exiftool").
	Binary string
	// Tag is the EXIF tag holding the capture time, e.g. "DateTimeOriginal".
	Tag string
	// DateFormat is the strftime-style format handed to exiftool's -d flag
	// and used to parse the rendered value back.
	DateFormat string

	Log logr.Logger
}

// Args returns the exiftool arguments for a batch.
func (e *ExifTool) Args(paths []string) []string {
	args := make([]string, 0, len(paths)+4)
	args = append(args, "-"+e.Tag, "-d", e.DateFormat, "-json")
	return append(args, paths...)
}

// Extract implements Extractor.
func (e *ExifTool) Extract(ctx context.Context, paths []string) (map[string]time.Time, error) {
	if len(paths) == 0 {
		return map[string]time.Time{}, nil
	}
	bin := e.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, e.Args(paths)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &BatchError{Size: len(paths), Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	times, err := ParseRecords(stdout.Bytes(), e.Tag, e.DateFormat, paths, e.Log)
	if err != nil {
		return nil, &BatchError{Size: len(paths), Err: err}
	}
	return times, nil
}

// ParseRecords decodes exiftool -json output. Records are matched to the
// requested paths through their SourceFile field; records for paths that
// were not requested, and records without a parseable tag value, are
// dropped.
func ParseRecords(data []byte, tag, dateFormat string, requested []string, log logr.Logger) (map[string]time.Time, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode exiftool output: %w", err)
	}

	byClean := make(map[string]string, len(requested))
	for _, p := range requested {
		byClean[filepath.Clean(p)] = p
	}

	times := make(map[string]time.Time, len(records))
	for _, rec := range records {
		src, _ := rec["SourceFile"].(string)
		path, ok := byClean[filepath.Clean(src)]
		if !ok {
			log.V(1).Info("ignoring exiftool record for unrequested file", "sourceFile", src)
			continue
		}
		raw, ok := rec[tag].(string)
		if !ok {
			continue
		}
		t, err := strftime.Parse(dateFormat, strings.TrimSpace(raw))
		if err != nil {
			log.V(1).Info("unparsable capture time", "path", path, "value", raw, "error", err.Error())
			continue
		}
		times[path] = t
	}
	return times, nil
}

// BatchError reports a batch whose extraction failed as a whole.
type BatchError struct {
	Index  int
	Size   int
	Err    error
	Stderr string
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("metadata batch %d (%d files): %v", e.Index, e.Size, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *BatchError) Unwrap() error { return e.Err }
