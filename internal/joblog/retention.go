package joblog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"vpo/internal/logging"
)

// RetentionConfig controls how old job logs are compressed and deleted.
type RetentionConfig struct {
	CompressAfter time.Duration // age at which a plain .log is gzipped
	DeleteAfter   time.Duration // age at which a .log/.log.gz is removed
}

// DefaultRetentionConfig matches the original retention defaults: compress
// after 7 days, delete after 90.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		CompressAfter: 7 * 24 * time.Hour,
		DeleteAfter:   90 * 24 * time.Hour,
	}
}

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Compressed   int
	Deleted      int
	OrphansSwept int
}

// Sweep walks logsDir, gzipping plain logs older than CompressAfter and
// deleting logs (plain or compressed) older than DeleteAfter. It also
// removes orphaned *.vpo_temp_* scratch files found under logsDir's parent
// directory, subject only to their own mtime check against DeleteAfter.
func Sweep(logsDir string, cfg RetentionConfig, now time.Time) (SweepResult, error) {
	var result SweepResult

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("read logs directory %s: %w", logsDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(logsDir, name)
		info, err := entry.Info()
		if err != nil {
			logging.JobLogWarn("retention: stat %s: %v", path, err)
			continue
		}
		age := now.Sub(info.ModTime())

		switch {
		case strings.HasSuffix(name, ".log"):
			if age >= cfg.DeleteAfter {
				if err := os.Remove(path); err != nil {
					logging.JobLogWarn("retention: delete %s: %v", path, err)
					continue
				}
				result.Deleted++
				continue
			}
			if age >= cfg.CompressAfter {
				if err := compressLog(path); err != nil {
					logging.JobLogWarn("retention: compress %s: %v", path, err)
					continue
				}
				result.Compressed++
			}
		case strings.HasSuffix(name, ".log.gz"):
			if age >= cfg.DeleteAfter {
				if err := os.Remove(path); err != nil {
					logging.JobLogWarn("retention: delete %s: %v", path, err)
					continue
				}
				result.Deleted++
			}
		}
	}

	orphans, err := sweepOrphanedTempFiles(filepath.Dir(logsDir), cfg.DeleteAfter, now)
	if err != nil {
		logging.JobLogWarn("retention: orphan sweep: %v", err)
	}
	result.OrphansSwept = orphans

	logging.JobLog("retention sweep on %s: compressed=%d deleted=%d orphans=%d",
		logsDir, result.Compressed, result.Deleted, result.OrphansSwept)
	return result, nil
}

func compressLog(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := path + ".gz"
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := gw.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return err
	}
	return os.Remove(path)
}

// sweepOrphanedTempFiles removes stale *.vpo_temp_* scratch files left
// under dataDir by an interrupted process.
func sweepOrphanedTempFiles(dataDir string, deleteAfter time.Duration, now time.Time) (int, error) {
	swept := 0
	err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if !strings.Contains(d.Name(), ".vpo_temp_") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) < deleteAfter {
			return nil
		}
		if rmErr := os.Remove(path); rmErr == nil {
			swept++
		}
		return nil
	})
	return swept, err
}
