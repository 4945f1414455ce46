package tooladapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vpo/internal/logging"
	"vpo/internal/model"
)

// matroskaRemuxer implements Remuxer over an mkvmerge-class binary: the
// Matroska-target tool in the adapter-selection policy.
type matroskaRemuxer struct {
	binary string
}

// NewMatroskaRemuxer returns the Remuxer used when the target container is
// Matroska (or the source already is and no container change is needed).
func NewMatroskaRemuxer(binary string) Remuxer {
	if binary == "" {
		binary = "mkvmerge"
	}
	return &matroskaRemuxer{binary: binary}
}

func (r *matroskaRemuxer) Name() string              { return r.binary }
func (r *matroskaRemuxer) SupportsReorder() bool      { return true }
func (r *matroskaRemuxer) Available(ctx context.Context) bool { return available(r.binary) }
func (r *matroskaRemuxer) SupportsContainer(container string) bool {
	return strings.EqualFold(container, "matroska") || strings.EqualFold(container, "mkv")
}

// Remux applies track filtering, reordering, and container change by
// stream copy, writing to a temp sibling and swapping atomically over the
// original only once the new file exists, preserving the original as
// <path>.vpo-backup until success is confirmed.
func (r *matroskaRemuxer) Remux(ctx context.Context, path string, plan RemuxPlan) (string, error) {
	if !r.Available(ctx) {
		return "", &model.ToolUnavailableError{Tool: r.binary, Purpose: "track filtering / reorder / remux"}
	}

	tmp := tempSibling(path)
	args := []string{"-o", tmp}
	if len(plan.KeepTrackIndices) > 0 {
		args = append(args, "--audio-tracks", joinIndices(plan.KeepTrackIndices))
	}
	if len(plan.TrackOrder) > 0 {
		args = append(args, "--track-order", trackOrderArg(plan.TrackOrder))
	}
	args = append(args, path)

	if _, _, err := runCapture(ctx, Timeout, r.binary, args...); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return swapWithBackup(path, tmp)
}

// ffmpegRemuxer implements Remuxer for non-Matroska containers via an
// ffmpeg-class binary operating in stream-copy mode.
type ffmpegRemuxer struct {
	binary string
}

// NewFFmpegRemuxer returns the Remuxer used for non-Matroska container
// changes and track filtering.
func NewFFmpegRemuxer(binary string) Remuxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegRemuxer{binary: binary}
}

func (r *ffmpegRemuxer) Name() string              { return r.binary }
func (r *ffmpegRemuxer) SupportsReorder() bool      { return true }
func (r *ffmpegRemuxer) Available(ctx context.Context) bool { return available(r.binary) }
func (r *ffmpegRemuxer) SupportsContainer(container string) bool {
	return !strings.EqualFold(container, "matroska") && !strings.EqualFold(container, "mkv")
}

func (r *ffmpegRemuxer) Remux(ctx context.Context, path string, plan RemuxPlan) (string, error) {
	if !r.Available(ctx) {
		return "", &model.ToolUnavailableError{Tool: r.binary, Purpose: "track filtering / remux"}
	}

	ext := plan.TargetContainer
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	tmp := tempSiblingExt(path, ext)

	args := []string{"-y", "-i", path, "-c", "copy"}
	for _, idx := range plan.KeepTrackIndices {
		args = append(args, "-map", fmt.Sprintf("0:%d", idx))
	}
	if len(plan.TrackOrder) > 0 {
		for _, idx := range plan.TrackOrder {
			args = append(args, "-map", fmt.Sprintf("0:%d", idx))
		}
	}
	args = append(args, tmp)

	if _, _, err := runCapture(ctx, Timeout, r.binary, args...); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return swapWithBackup(path, tmp)
}

func tempSibling(path string) string {
	return path + ".vpo-tmp" + filepath.Ext(path)
}

func tempSiblingExt(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ".vpo-tmp." + ext
}

// swapWithBackup fsyncs tmp, preserves the original as <path>.vpo-backup,
// then renames tmp over path. The backup is left in place until the caller
// confirms success (see internal/phaseexec for the confirm/cleanup step).
func swapWithBackup(path, tmp string) (string, error) {
	f, err := os.Open(tmp)
	if err != nil {
		return "", fmt.Errorf("open remuxed output: %w", err)
	}
	if syncErr := f.Sync(); syncErr != nil {
		_ = f.Close()
		return "", fmt.Errorf("fsync remuxed output: %w", syncErr)
	}
	_ = f.Close()

	backup := path + ".vpo-backup"
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("preserve original as backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		// Best-effort restore of the original on failed swap.
		if restoreErr := os.Rename(backup, path); restoreErr != nil {
			logging.ToolAdapter("failed to restore backup %s after swap failure: %v", backup, restoreErr)
		}
		return "", fmt.Errorf("swap remuxed output into place: %w", err)
	}
	return path, nil
}

func joinIndices(indices []int) string {
	out := ""
	for i, idx := range indices {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", idx)
	}
	return out
}
