package metadata

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/rwcarlsen/goexif/exif"
)

// exifLayout is the fixed EXIF date/time representation.
const exifLayout = "2006:01:02 15:04:05"

// GoExif decodes EXIF in-process. It needs no external tool but only
// understands JPEG and TIFF-based files (which covers most RAW formats).
type GoExif struct {
	// Tag is the EXIF field to read; empty means DateTimeOriginal.
	Tag string

	Log logr.Logger
}

// Extract implements Extractor. Files that cannot be decoded are left out
// of the result; only cancellation fails the batch.
func (g *GoExif) Extract(ctx context.Context, paths []string) (map[string]time.Time, error) {
	times := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := readExifTime(p, g.Tag)
		if err != nil {
			g.Log.V(1).Info("no capture time", "path", p, "error", err.Error())
			continue
		}
		times[p] = t
	}
	return times, nil
}

// readExifTime extracts the capture time from a file's EXIF metadata.
func readExifTime(path, tag string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	if tag == "" || tag == string(exif.DateTimeOriginal) {
		return x.DateTime()
	}
	field, err := x.Get(exif.FieldName(tag))
	if err != nil {
		return time.Time{}, err
	}
	val, err := field.StringVal()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(exifLayout, strings.TrimSpace(val), time.Local)
}
