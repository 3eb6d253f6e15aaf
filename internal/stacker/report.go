package stacker

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ReportFile is the CSV written into the target root after sorting.
const ReportFile = "focus_stacks.csv"

// reportHeaders describe one row per planned image.
var reportHeaders = []string{
	"stack",        // Stack directory name
	"ordinal",      // Stack ordinal
	"filename",     // Image base name
	"source_path",  // Where the image was found
	"dest_path",    // Where it was moved to
	"class",        // RAW or STANDARD
	"capture_time", // Parsed capture timestamp
	"sidecar",      // Moved sidecar base name, if any
	"status",       // moved, failed, sidecar_failed or planned
	"error",        // Move error, if any
}

// WriteReport writes a CSV row for every entry of every stack to path,
// replacing an existing report.
func WriteReport(path string, res Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportHeaders); err != nil {
		return err
	}
	for _, s := range res.Stacks {
		for _, e := range s.Entries {
			status, errText := "moved", ""
			switch {
			case res.DryRun:
				status = "planned"
			case e.Err != nil:
				status, errText = "failed", e.Err.Error()
			case e.SidecarErr != nil:
				status, errText = "sidecar_failed", e.SidecarErr.Error()
			}
			sidecar := ""
			if e.Sidecar != "" {
				sidecar = filepath.Base(e.Sidecar)
			}
			row := []string{
				s.Name,
				strconv.Itoa(s.Ordinal),
				filepath.Base(e.Asset.Path),
				e.Asset.Path,
				e.Dest,
				e.Asset.Class.String(),
				e.Asset.Taken.Format(time.RFC3339Nano),
				sidecar,
				status,
				errText,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
