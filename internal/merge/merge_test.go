package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

// fakeEngine writes each requested output and records the invocation.
type fakeEngine struct {
	calls     []Invocation
	manifests [][]string
	fail      map[int]bool
}

func (f *fakeEngine) Run(_ context.Context, inv Invocation) error {
	f.calls = append(f.calls, inv)
	body, err := os.ReadFile(inv.Manifest)
	if err != nil {
		return err
	}
	f.manifests = append(f.manifests, strings.Fields(string(body)))
	if f.fail[inv.Selector] {
		return &InvocationError{Output: inv.Output, ExitCode: 1, Stderr: "boom"}
	}
	return os.WriteFile(inv.Output, []byte("merged"), 0o644)
}

func settings() Settings {
	return Settings{
		Radius:       3,
		Smoothing:    1,
		JPEGQuality:  95,
		Format:       FormatDNG,
		OutputSubdir: "stacked",
		MethodA:      true,
		MethodB:      true,
		Combination:  true,
	}
}

func stackDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Stack_001")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func noManifestsLeft(t *testing.T, dir string) {
	t.Helper()
	left, _ := filepath.Glob(filepath.Join(dir, manifestPattern))
	if len(left) != 0 {
		t.Errorf("manifests left behind: %v", left)
	}
}

// --- Settings ---

func TestSettingsValidate(t *testing.T) {
	t.Parallel()
	if err := settings().Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	bad := []func(*Settings){
		func(s *Settings) { s.Radius = 0 },
		func(s *Settings) { s.Radius = 9 },
		func(s *Settings) { s.Smoothing = 5 },
		func(s *Settings) { s.JPEGQuality = 0 },
		func(s *Settings) { s.Format = "png" },
		func(s *Settings) { s.OutputSubdir = "a/b" },
		func(s *Settings) { s.OutputSubdir = "" },
	}
	for i, mutate := range bad {
		s := settings()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

// --- Process ---

func TestProcessRunsEnabledMethodsAndCombination(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "b.orf", "a.orf", "notes.txt")
	eng := &fakeEngine{}
	o := NewOrchestrator(settings(), eng, logr.Discard())

	rep, err := o.Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.calls) != 3 {
		t.Fatalf("got %d engine calls, want 3", len(eng.calls))
	}
	if eng.calls[0].Selector != 0 || eng.calls[1].Selector != 1 || eng.calls[2].Selector != 1 {
		t.Errorf("unexpected selectors %+v", eng.calls)
	}
	want := []string{filepath.Join(dir, "a.orf"), filepath.Join(dir, "b.orf")}
	if got := eng.manifests[0]; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("manifest = %v, want %v", got, want)
	}
	ab := eng.manifests[2]
	if len(ab) != 2 || ab[0] != o.OutputPath(dir, "A") || ab[1] != o.OutputPath(dir, "B") {
		t.Errorf("combination manifest = %v", ab)
	}
	if !rep.Combined || len(rep.Outputs) != 3 || rep.Images != 2 {
		t.Errorf("unexpected report %+v", rep)
	}
	if eng.calls[0].JPEGQuality != 0 {
		t.Errorf("quality must only be passed for jpg output")
	}
	if got := filepath.Base(o.OutputPath(dir, "AB")); got != "Stack_001_AB.dng" {
		t.Errorf("OutputPath = %q", got)
	}
	noManifestsLeft(t, dir)
}

func TestProcessIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "a.orf", "b.orf")
	o := NewOrchestrator(settings(), &fakeEngine{}, logr.Discard())
	if _, err := o.Process(context.Background(), dir); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	eng := &fakeEngine{}
	o = NewOrchestrator(settings(), eng, logr.Discard())
	rep, err := o.Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if len(eng.calls) != 0 {
		t.Fatalf("got %d engine calls on rerun, want 0", len(eng.calls))
	}
	if len(rep.Reused) != 3 || len(rep.Generated) != 0 || !rep.Combined {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestProcessOnlyMethodA(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "a.orf", "b.orf")
	s := settings()
	s.MethodB = false
	eng := &fakeEngine{}

	rep, err := NewOrchestrator(s, eng, logr.Discard()).Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.calls) != 1 || eng.calls[0].Selector != 0 {
		t.Fatalf("got %+v, want exactly one call for A", eng.calls)
	}
	if rep.Combined || len(rep.Skipped) != 1 || rep.Skipped[0] != Combination {
		t.Errorf("combination must be skipped, got %+v", rep)
	}
}

func TestProcessSkipsCombinationWhenBFails(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "a.orf", "b.orf")
	eng := &fakeEngine{fail: map[int]bool{1: true}}

	rep, err := NewOrchestrator(settings(), eng, logr.Discard()).Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(eng.calls))
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != "B" || rep.Combined {
		t.Errorf("unexpected report %+v", rep)
	}
	var ie *InvocationError
	if len(rep.Errors) != 1 || !errors.As(rep.Errors[0], &ie) {
		t.Errorf("expected an InvocationError, got %v", rep.Errors)
	}
	noManifestsLeft(t, dir)
}

func TestProcessReusesExistingCombination(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantSel []int
	}{
		{name: "A and B pending", wantSel: []int{0, 1}},
		{name: "A and B disabled", mutate: func(s *Settings) { s.MethodA, s.MethodB = false, false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := stackDir(t, "a.orf", "b.orf")
			s := settings()
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			eng := &fakeEngine{}
			o := NewOrchestrator(s, eng, logr.Discard())
			ab := o.OutputPath(dir, Combination)
			if err := os.MkdirAll(filepath.Dir(ab), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(ab, []byte("old"), 0o644); err != nil {
				t.Fatal(err)
			}

			rep, err := o.Process(context.Background(), dir)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if len(eng.calls) != len(tt.wantSel) {
				t.Fatalf("got %d engine calls, want %d", len(eng.calls), len(tt.wantSel))
			}
			for i, inv := range eng.calls {
				if inv.Selector != tt.wantSel[i] || inv.Output == ab {
					t.Errorf("call %d = %+v", i, inv)
				}
			}
			if len(rep.Reused) != 1 || rep.Reused[0] != Combination || !rep.Combined || len(rep.Skipped) != 0 {
				t.Errorf("unexpected report %+v", rep)
			}
			if body, _ := os.ReadFile(ab); string(body) != "old" {
				t.Errorf("existing combination was rewritten")
			}
		})
	}
}

func TestProcessPassesJPEGQuality(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "a.jpg", "b.jpg")
	s := settings()
	s.Format = FormatJPEG
	eng := &fakeEngine{}

	rep, err := NewOrchestrator(s, eng, logr.Discard()).Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.calls) != 3 {
		t.Fatalf("got %d engine calls, want 3", len(eng.calls))
	}
	for i, inv := range eng.calls {
		if inv.JPEGQuality != 95 {
			t.Errorf("call %d quality = %d, want 95", i, inv.JPEGQuality)
		}
		if filepath.Ext(inv.Output) != ".jpg" {
			t.Errorf("call %d output = %q, want .jpg", i, inv.Output)
		}
	}
	if !rep.Combined {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestProcessFailureLeavesNoOutputDir(t *testing.T) {
	t.Parallel()
	dir := stackDir(t, "a.orf", "b.orf")
	o := NewOrchestrator(settings(), &fakeEngine{fail: map[int]bool{0: true, 1: true}}, logr.Discard())

	rep, err := o.Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rep.Failed) != 2 || len(rep.Outputs) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if _, err := os.Stat(o.OutputDir(dir)); !os.IsNotExist(err) {
		t.Errorf("empty output directory left behind: %v", err)
	}
	if o.Done(dir) {
		t.Errorf("a stack without outputs must not count as done")
	}

	o = NewOrchestrator(settings(), &fakeEngine{}, logr.Discard())
	if _, err := o.Process(context.Background(), dir); err != nil {
		t.Fatalf("retry Process: %v", err)
	}
	if !o.Done(dir) {
		t.Errorf("stack should be done after a successful retry")
	}
}

func TestProcessEmptyStack(t *testing.T) {
	t.Parallel()
	dir := stackDir(t)
	eng := &fakeEngine{}

	rep, err := NewOrchestrator(settings(), eng, logr.Discard()).Process(context.Background(), dir)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.calls) != 0 || len(rep.Failed) != 2 || !errors.Is(rep.Errors[0], ErrNoImages) {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestProcessMissingDirectory(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator(settings(), &fakeEngine{}, logr.Discard())
	if _, err := o.Process(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for a missing stack directory")
	}
}

// --- Helicon ---

func TestHeliconArgs(t *testing.T) {
	t.Parallel()
	h := &Helicon{Path: "helicon", ExtraArgs: []string{"-va:0"}}
	got := strings.Join(h.Args(Invocation{Manifest: "m.txt", Output: "o.jpg", Selector: 2, Radius: 4, Smoothing: 2, JPEGQuality: 90}), " ")
	want := "-silent -i m.txt -save:o.jpg -mp:2 -rp:4 -sp:2 -j:90 -va:0"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	got = strings.Join(h.Args(Invocation{Manifest: "m.txt", Output: "o.dng", Selector: 0, Radius: 3, Smoothing: 1}), " ")
	if strings.Contains(got, "-j:") {
		t.Errorf("quality passed without JPEG output: %q", got)
	}
}

func TestHeliconRunFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	t.Parallel()
	script := filepath.Join(t.TempDir(), "fake-helicon")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'cannot open' >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := &Helicon{Path: script, Log: logr.Discard()}
	err := h.Run(context.Background(), Invocation{Manifest: "m.txt", Output: "o.dng"})
	var ie *InvocationError
	if !errors.As(err, &ie) {
		t.Fatalf("got %v, want InvocationError", err)
	}
	if ie.ExitCode != 3 || ie.Stderr != "cannot open" {
		t.Errorf("got exit=%d stderr=%q", ie.ExitCode, ie.Stderr)
	}
}
