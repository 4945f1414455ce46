// Package introspect runs the Introspector over a file and persists the
// result, replacing the file's tracks atomically on every (re)scan.
package introspect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/storage"
	"vpo/internal/tooladapter"
)

// partialHashBytes is the prefix length hashed for the change-detection
// fingerprint.
const partialHashBytes = 16 * 1024

// Pipeline runs probes and persists their results.
type Pipeline struct {
	introspector tooladapter.Introspector
	files        *storage.FilesRepo
	tracks       *storage.TracksRepo
}

// New returns a Pipeline bound to the given introspector and repositories.
func New(introspector tooladapter.Introspector, files *storage.FilesRepo, tracks *storage.TracksRepo) *Pipeline {
	return &Pipeline{introspector: introspector, files: files, tracks: tracks}
}

// Scan probes path, upserts the File row, and replaces its tracks. Failure
// at any step leaves the prior track set intact: the upsert and the track
// replacement are independent transactions, and the track replacement only
// runs once the upsert has succeeded.
func (p *Pipeline) Scan(ctx context.Context, path string) (*model.File, error) {
	timer := logging.StartTimer(logging.CategoryIntrospect, "scan:"+path)
	defer timer.Stop()

	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("stat %s: %w", path, statErr)
	}

	hash, err := partialHash(path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	probe, probeErr := p.introspector.Probe(ctx, path)

	f := &model.File{
		Path:         path,
		Filename:     filepath.Base(path),
		Directory:    filepath.Dir(path),
		Extension:    strings.TrimPrefix(filepath.Ext(path), "."),
		SizeBytes:    info.Size(),
		PartialHash:  hash,
		ModTime:      info.ModTime(),
		LastScanTime: time.Now(),
	}

	if probeErr != nil {
		f.ScanStatus = model.ScanStatusError
		f.ScanError = probeErr.Error()
		logging.Get(logging.CategoryIntrospect).Warn("probe failed for %s: %v", path, probeErr)
	} else {
		f.ScanStatus = model.ScanStatusOK
		f.Container = probe.Container
	}

	id, err := p.files.Upsert(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("upsert file %s: %w", path, err)
	}
	f.ID = id

	if probeErr != nil {
		// A failed probe keeps the prior track set: we never clear tracks
		// we couldn't replace with fresh data.
		return f, nil
	}

	if err := p.tracks.ReplaceForFile(ctx, id, probe.Tracks); err != nil {
		return nil, fmt.Errorf("replace tracks for %s: %w", path, err)
	}

	logging.Introspect("scanned %s: container=%s tracks=%d", path, probe.Container, len(probe.Tracks))
	return f, nil
}

func partialHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, partialHashBytes); err != nil && err != io.EOF {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
