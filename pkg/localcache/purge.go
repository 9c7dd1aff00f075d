package localcache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// PurgeError reports a file that could not be inspected or removed.
type PurgeError struct {
	Path string
	Err  error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge %s: %v", e.Path, e.Err)
}

func (e *PurgeError) Unwrap() error {
	return e.Err
}

// PurgeReport summarizes one sweep.
type PurgeReport struct {
	Scanned      int
	Removed      []string
	BytesRemoved int64
	Errors       []*PurgeError
}

// Purge deletes every regular file under the storage root whose modification
// time is before now-retention. A non-positive retention uses
// DefaultRetention.
//
// Purge never fails: per-file errors are logged, recorded in the report and
// the sweep moves on.
func (m *Manager) Purge(retention time.Duration) PurgeReport {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := m.now().Add(-retention)

	var report PurgeReport
	record := func(path string, err error) {
		perr := &PurgeError{Path: path, Err: err}
		report.Errors = append(report.Errors, perr)
		m.log.Warn("Failed to purge cached file", zap.String("path", path), zap.Error(err))
	}

	_ = filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			record(path, err)
			if d != nil && d.IsDir() && path != m.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := m.reserved[filepath.Clean(path)]; ok {
			return nil
		}

		report.Scanned++
		info, err := d.Info()
		if err != nil {
			record(path, err)
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		m.log.Info("Cleaning up cached file",
			zap.String("path", path),
			zap.Time("modified", info.ModTime()))
		if err := os.Remove(path); err != nil {
			record(path, err)
			return nil
		}
		report.Removed = append(report.Removed, path)
		report.BytesRemoved += info.Size()
		return nil
	})

	m.log.Debug("Purge complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("removed", len(report.Removed)),
		zap.Int("errors", len(report.Errors)))
	return report
}
