package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Invocation is one call of the merge engine.
type Invocation struct {
	// Manifest lists the input images, one absolute path per line.
	Manifest string
	// Output is the file the engine writes.
	Output    string
	Selector  int
	Radius    int
	Smoothing int
	// JPEGQuality is passed only when non-zero.
	JPEGQuality int
}

// Engine runs the external merge program.
type Engine interface {
	Run(ctx context.Context, inv Invocation) error
}

// InvocationError reports a failed engine run.
type InvocationError struct {
	Output   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("merge engine failed for %s", e.Output)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Helicon runs the Helicon Focus command line.
type Helicon struct {
	// Path is the Helicon Focus executable.
	Path string
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string

	Log logr.Logger
}

// Args returns the command line arguments for inv.
func (h *Helicon) Args(inv Invocation) []string {
	args := []string{
		"-silent",
		"-i", inv.Manifest,
		"-save:" + inv.Output,
		"-mp:" + strconv.Itoa(inv.Selector),
		"-rp:" + strconv.Itoa(inv.Radius),
		"-sp:" + strconv.Itoa(inv.Smoothing),
	}
	if inv.JPEGQuality > 0 {
		args = append(args, "-j:"+strconv.Itoa(inv.JPEGQuality))
	}
	return append(args, h.ExtraArgs...)
}

// Run implements Engine. It blocks for the engine's full runtime.
func (h *Helicon) Run(ctx context.Context, inv Invocation) error {
	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.Path, h.Args(inv)...)
	cmd.Stderr = &stderr
	h.Log.V(1).Info("running merge engine", "args", cmd.Args)

	if err := cmd.Run(); err != nil {
		ie := &InvocationError{Output: inv.Output, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ie.ExitCode = exitErr.ExitCode()
		}
		return ie
	}
	h.Log.V(1).Info("merge engine finished", "output", inv.Output, "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}
