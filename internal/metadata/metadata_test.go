package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"focus-stacker/internal/workpool"
)

const testFormat = "%Y:%m:%d %H:%M:%S"

// --- ParseRecords ---

func TestParseRecords(t *testing.T) {
	out := []byte(`[
  {"SourceFile": "/p/a.nef", "DateTimeOriginal": "2024:05:01 10:00:00"},
  {"SourceFile": "/p/b.nef"},
  {"SourceFile": "/p/c.nef", "DateTimeOriginal": "garbage"},
  {"SourceFile": "/p/d.nef", "DateTimeOriginal": 12},
  {"SourceFile": "/elsewhere/x.nef", "DateTimeOriginal": "2024:05:01 10:00:00"}
]`)
	got, err := ParseRecords(out, "DateTimeOriginal", testFormat,
		[]string{"/p/a.nef", "/p/b.nef", "/p/c.nef", "/p/d.nef", "/p/e.nef"}, logr.Discard())
	if err != nil {
		t.Fatalf("ParseRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d timestamps, want 1: %v", len(got), got)
	}
	ts, ok := got["/p/a.nef"]
	if !ok {
		t.Fatalf("missing /p/a.nef")
	}
	if ts.Year() != 2024 || ts.Month() != time.May || ts.Day() != 1 || ts.Hour() != 10 {
		t.Errorf("parsed %v", ts)
	}
}

func TestParseRecordsInvalidJSON(t *testing.T) {
	if _, err := ParseRecords([]byte("not json"), "DateTimeOriginal", testFormat, nil, logr.Discard()); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestExifToolArgs(t *testing.T) {
	e := &ExifTool{Tag: "DateTimeOriginal", DateFormat: testFormat}
	got := strings.Join(e.Args([]string{"a.nef", "b.nef"}), " ")
	want := "-DateTimeOriginal -d " + testFormat + " -json a.nef b.nef"
	if got != want {
		t.Fatalf("Args = %q, want %q", got, want)
	}
}

// --- ExifTool against a stand-in script ---

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "exiftool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExifToolExtract(t *testing.T) {
	bin := writeScript(t, `cat <<'JSON'
[{"SourceFile": "/p/a.nef", "DateTimeOriginal": "2024:05:01 10:00:01"}]
JSON
`)
	e := &ExifTool{Binary: bin, Tag: "DateTimeOriginal", DateFormat: testFormat, Log: logr.Discard()}
	got, err := e.Extract(context.Background(), []string{"/p/a.nef", "/p/b.nef"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got["/p/a.nef"].Second() != 1 {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestExifToolExtractNonZeroExit(t *testing.T) {
	bin := writeScript(t, "echo boom >&2\nexit 2\n")
	e := &ExifTool{Binary: bin, Tag: "DateTimeOriginal", DateFormat: testFormat, Log: logr.Discard()}
	_, err := e.Extract(context.Background(), []string{"/p/a.nef"})
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BatchError, got %v", err)
	}
	if be.Stderr != "boom" {
		t.Errorf("Stderr = %q, want boom", be.Stderr)
	}
}

// --- BatchReader ---

type fakeExtractor struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(batch []string) bool
	base  time.Time
}

func (f *fakeExtractor) Extract(_ context.Context, paths []string) (map[string]time.Time, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), paths...))
	f.mu.Unlock()
	if f.fail != nil && f.fail(paths) {
		return nil, errors.New("tool crashed")
	}
	out := map[string]time.Time{}
	for i, p := range paths {
		if strings.HasSuffix(p, ".notag") {
			continue
		}
		out[p] = f.base.Add(time.Duration(i) * time.Second)
	}
	return out, nil
}

func makePaths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/photos/IMG_%04d.nef", i)
	}
	return out
}

func TestSplit(t *testing.T) {
	batches := Split(makePaths(250), 100)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[2]) != 50 {
		t.Errorf("batch sizes %d/%d", len(batches[0]), len(batches[2]))
	}
	if Split(nil, 10) != nil {
		t.Errorf("empty input should produce no batches")
	}
}

func TestBatchReaderEmptyInput(t *testing.T) {
	ex := &fakeExtractor{}
	r := NewBatchReader(ex, workpool.New("meta", 4), 100, logr.Discard())
	res, err := r.Read(context.Background(), nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(res.Times) != 0 || len(ex.calls) != 0 {
		t.Fatalf("empty input must not call the extractor (calls=%d)", len(ex.calls))
	}
}

func TestBatchReaderUnionsBatches(t *testing.T) {
	ex := &fakeExtractor{base: time.Unix(1700000000, 0)}
	r := NewBatchReader(ex, workpool.New("meta", 4), 10, logr.Discard())
	paths := makePaths(35)
	paths[3] = "/photos/IMG_notag.notag"

	res, err := r.Read(context.Background(), paths)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Batches != 4 || len(ex.calls) != 4 {
		t.Fatalf("batches=%d calls=%d, want 4", res.Batches, len(ex.calls))
	}
	if len(res.Times) != 34 {
		t.Fatalf("got %d timestamps, want 34", len(res.Times))
	}
	if _, ok := res.Times["/photos/IMG_notag.notag"]; ok {
		t.Errorf("file without tag must be excluded")
	}
}

func TestBatchReaderIsolatesFailedBatch(t *testing.T) {
	ex := &fakeExtractor{
		base: time.Unix(1700000000, 0),
		fail: func(batch []string) bool { return batch[0] == "/photos/IMG_0010.nef" },
	}
	r := NewBatchReader(ex, workpool.New("meta", 2), 10, logr.Discard())

	res, err := r.Read(context.Background(), makePaths(30))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.FailedBatches != 1 || len(res.Errors) != 1 {
		t.Fatalf("FailedBatches=%d errors=%d, want 1", res.FailedBatches, len(res.Errors))
	}
	var be *BatchError
	if !errors.As(res.Errors[0], &be) || be.Index != 1 || be.Size != 10 {
		t.Fatalf("unexpected batch error %v", res.Errors[0])
	}
	if len(res.Times) != 20 {
		t.Fatalf("got %d timestamps, want 20 from the surviving batches", len(res.Times))
	}
}

// --- GoExif ---

func TestGoExifSkipsUnreadableFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(plain, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	g := &GoExif{Log: logr.Discard()}
	times, err := g.Extract(context.Background(), []string{plain, filepath.Join(dir, "missing.jpg")})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(times) != 0 {
		t.Errorf("got %d timestamps, want 0", len(times))
	}
}

func TestGoExifStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &GoExif{Log: logr.Discard()}
	if _, err := g.Extract(ctx, []string{"a.jpg"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
