package merge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"focus-stacker/internal/media"
)

// ErrNoImages is reported when a stack directory holds nothing to merge.
var ErrNoImages = errors.New("no images in stack directory")

// manifestPattern names the temporary input lists written into a stack
// directory while the engine runs. The leading dot keeps them out of scans.
const manifestPattern = ".focus-manifest-*.txt"

// Report describes what Process did for one stack.
type Report struct {
	Stack string
	// Images is the number of input images found, zero when every enabled
	// method was already satisfied.
	Images int
	// Outputs lists every satisfied output path, base methods first.
	Outputs []string

	Reused    []string
	Generated []string
	Failed    []string
	Skipped   []string

	// Combined is true when the AB output exists after the run.
	Combined    bool
	Invocations int
	Errors      []error
}

// Orchestrator runs the enabled merge methods over stack directories.
type Orchestrator struct {
	settings Settings
	engine   Engine
	log      logr.Logger
}

// NewOrchestrator returns an Orchestrator using engine.
func NewOrchestrator(settings Settings, engine Engine, log logr.Logger) *Orchestrator {
	return &Orchestrator{settings: settings, engine: engine, log: log}
}

// OutputDir returns the directory outputs for stackDir are written to.
func (o *Orchestrator) OutputDir(stackDir string) string {
	return filepath.Join(stackDir, o.settings.OutputSubdir)
}

// OutputPath returns <stackDir>/<subdir>/<stack>_<method>.<format>.
func (o *Orchestrator) OutputPath(stackDir, method string) string {
	name := fmt.Sprintf("%s_%s.%s", filepath.Base(stackDir), method, strings.ToLower(o.settings.Format))
	return filepath.Join(o.OutputDir(stackDir), name)
}

// Completed reports whether the output for method already exists.
func (o *Orchestrator) Completed(stackDir, method string) bool {
	info, err := os.Stat(o.OutputPath(stackDir, method))
	return err == nil && info.Mode().IsRegular()
}

// Done reports whether every output the settings ask for exists in
// stackDir: each enabled base method, plus AB when it can be produced.
func (o *Orchestrator) Done(stackDir string) bool {
	want := 0
	for _, m := range BaseMethods() {
		if !o.settings.Enabled(m) {
			continue
		}
		want++
		if !o.Completed(stackDir, m.Name) {
			return false
		}
	}
	if o.settings.Combination && o.settings.MethodA && o.settings.MethodB && !o.Completed(stackDir, Combination) {
		return false
	}
	return want > 0
}

// Process merges one stack directory. Methods whose output already exists
// are not re-run. A single method failing is recorded in the report and does
// not stop the others; the returned error is reserved for problems with the
// stack directory itself.
func (o *Orchestrator) Process(ctx context.Context, stackDir string) (Report, error) {
	dir, err := filepath.Abs(stackDir)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Stack: filepath.Base(dir)}
	info, err := os.Stat(dir)
	if err != nil {
		return rep, err
	}
	if !info.IsDir() {
		return rep, fmt.Errorf("%s is not a directory", dir)
	}
	outDir := o.OutputDir(dir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return rep, fmt.Errorf("create output directory: %w", err)
	}
	// Removes the output directory again when nothing landed in it.
	defer os.Remove(outDir)

	log := o.log.WithValues("stack", rep.Stack)
	satisfied := make(map[string]string)

	var pending []Method
	for _, m := range BaseMethods() {
		if !o.settings.Enabled(m) {
			continue
		}
		if o.Completed(dir, m.Name) {
			log.V(1).Info("output exists, skipping", "method", m.Name)
			satisfied[m.Name] = o.OutputPath(dir, m.Name)
			rep.Reused = append(rep.Reused, m.Name)
			continue
		}
		pending = append(pending, m)
	}

	if len(pending) > 0 {
		images, err := media.ListImages(dir)
		if err != nil {
			return rep, err
		}
		rep.Images = len(images)
		if len(images) == 0 {
			log.Info("no images found, nothing to merge")
			for _, m := range pending {
				rep.Failed = append(rep.Failed, m.Name)
			}
			rep.Errors = append(rep.Errors, ErrNoImages)
		} else {
			manifest, err := writeManifest(dir, images)
			if err != nil {
				return rep, err
			}
			defer os.Remove(manifest)

			for _, m := range pending {
				if err := ctx.Err(); err != nil {
					return rep, err
				}
				out := o.OutputPath(dir, m.Name)
				if o.invoke(ctx, &rep, log, m.Name, manifest, out, m.Selector) {
					satisfied[m.Name] = out
				}
			}
		}
	}

	if o.settings.Combination {
		out := o.OutputPath(dir, Combination)
		switch {
		case o.Completed(dir, Combination):
			log.V(1).Info("output exists, skipping", "method", Combination)
			rep.Reused = append(rep.Reused, Combination)
			satisfied[Combination] = out
		case o.settings.MethodA && o.settings.MethodB && satisfied[MethodA.Name] != "" && satisfied[MethodB.Name] != "":
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			manifest, err := writeManifest(dir, []string{satisfied[MethodA.Name], satisfied[MethodB.Name]})
			if err != nil {
				return rep, err
			}
			ok := o.invoke(ctx, &rep, log, Combination, manifest, out, MethodB.Selector)
			os.Remove(manifest)
			if ok {
				satisfied[Combination] = out
			}
		default:
			log.Info("combination needs both A and B outputs, skipping")
			rep.Skipped = append(rep.Skipped, Combination)
		}
	}

	for _, m := range BaseMethods() {
		if p := satisfied[m.Name]; p != "" {
			rep.Outputs = append(rep.Outputs, p)
		}
	}
	if p := satisfied[Combination]; p != "" {
		rep.Outputs = append(rep.Outputs, p)
		rep.Combined = true
	}
	return rep, nil
}

// invoke runs the engine once and records the outcome in rep.
func (o *Orchestrator) invoke(ctx context.Context, rep *Report, log logr.Logger, name, manifest, out string, selector int) bool {
	inv := Invocation{
		Manifest:  manifest,
		Output:    out,
		Selector:  selector,
		Radius:    o.settings.Radius,
		Smoothing: o.settings.Smoothing,
	}
	if o.settings.isJPEG() {
		inv.JPEGQuality = o.settings.JPEGQuality
	}
	log.Info("merging", "method", name, "output", filepath.Base(out))
	rep.Invocations++
	if err := o.engine.Run(ctx, inv); err != nil {
		log.Error(err, "merge failed", "method", name)
		rep.Failed = append(rep.Failed, name)
		rep.Errors = append(rep.Errors, err)
		return false
	}
	rep.Generated = append(rep.Generated, name)
	return true
}

// writeManifest writes paths, one per line, to a temporary file in dir.
func writeManifest(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, manifestPattern)
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return f.Name(), nil
}
