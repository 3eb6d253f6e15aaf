package stacker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"focus-stacker/internal/media"
)

// MoveError reports one file that could not be relocated.
type MoveError struct {
	Src string
	Dst string
	Err error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s to %s: %v", e.Src, e.Dst, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// moveInto moves src into dir keeping its base name and returns the number
// of bytes moved. An existing destination is never overwritten.
func moveInto(src, dir string) (string, int64, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	info, err := os.Lstat(src)
	if err != nil {
		return dst, 0, &MoveError{Src: src, Dst: dst, Err: err}
	}
	if _, err := os.Lstat(dst); err == nil {
		return dst, 0, &MoveError{Src: src, Dst: dst, Err: os.ErrExist}
	}

	// Try rename first, fall back to copy+delete for cross-device moves.
	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return dst, 0, &MoveError{Src: src, Dst: dst, Err: err}
		}
		if err := copyFile(src, dst, info); err != nil {
			os.Remove(dst)
			return dst, 0, &MoveError{Src: src, Dst: dst, Err: err}
		}
		if err := os.Remove(src); err != nil {
			return dst, 0, &MoveError{Src: src, Dst: dst, Err: fmt.Errorf("copied but could not remove source: %w", err)}
		}
	}
	return dst, info.Size(), nil
}

// copyFile copies src to dst, keeping permissions and modification time.
func copyFile(src, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// sidecarFor returns the existing sidecar next to an image, if any.
func sidecarFor(src string) (string, bool) {
	sc := media.SidecarPath(src)
	upper := strings.TrimSuffix(sc, media.SidecarExt) + strings.ToUpper(media.SidecarExt)
	for _, candidate := range []string{sc, upper} {
		if info, err := os.Lstat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}
