// Package stats implements Statistics Capture (spec.md §4.K): a per-(job,
// file) collector that snapshots before/after file state, accumulates
// per-operation and per-phase records during a run, and persists
// everything in a single transaction via internal/storage.StatsRepo.
package stats

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/storage"
)

// partialHashBytes matches internal/introspect's change-detection
// fingerprint: the first 16 KiB of the file, not the whole thing.
const partialHashBytes = 16 * 1024

// Collector accumulates one job's effect on one file, from before-state
// through persistence.
type Collector struct {
	stats model.ProcessingStats
}

// NewCollector starts a collector for (jobID, fileID) with a fresh UUID,
// per spec.md §4.K step 1.
func NewCollector(jobID string, fileID int64) *Collector {
	return &Collector{stats: model.ProcessingStats{
		StatsID: uuid.NewString(),
		JobID:   jobID,
		FileID:  fileID,
	}}
}

// CaptureBeforeState reads the file's size, computes its partial-content
// hash, and snapshots track counts and source video codec from the
// pre-run track set.
func (c *Collector) CaptureBeforeState(path string, ts model.TrackSet) error {
	size, hash, err := fileFingerprint(path)
	if err != nil {
		return fmt.Errorf("capture before-state for %s: %w", path, err)
	}
	c.stats.BeforeSize = size
	c.stats.BeforeHash = hash
	c.stats.BeforeCounts = countByType(ts)
	if video := ts.ByType(model.TrackVideo); len(video) > 0 {
		c.stats.VideoSourceCodec = video[0].Codec
	}
	logging.StatsDebug("captured before-state for stats %s: size=%s tracks=%+v",
		c.stats.StatsID, humanize.Bytes(uint64(size)), c.stats.BeforeCounts)
	return nil
}

// AddAction appends one operation's result to the in-memory buffer.
func (c *Collector) AddAction(a model.ActionResult) {
	c.stats.Actions = append(c.stats.Actions, a)
}

// AddPhaseMetrics appends one phase's timing/bytes record.
func (c *Collector) AddPhaseMetrics(m model.PerformanceMetric) {
	c.stats.Metrics = append(c.stats.Metrics, m)
}

// SetVideoTranscodeInfo records the target codec and which kind of
// encoder performed it, once known.
func (c *Collector) SetVideoTranscodeInfo(targetCodec string, encoder model.EncoderType) {
	c.stats.VideoTargetCodec = targetCodec
	c.stats.Encoder = encoder
}

// SetAudioTranscodeCounts records how many audio tracks were re-encoded
// versus left untouched.
func (c *Collector) SetAudioTranscodeCounts(transcoded, preserved int) {
	c.stats.AudioTracksTranscoded = transcoded
	c.stats.AudioTracksPreserved = preserved
}

// CaptureAfterState is symmetric to CaptureBeforeState. If ts is nil
// (re-introspection was unavailable, e.g. a failed phase left the file
// unscanned), the before-counts are copied verbatim rather than guessed
// at from the plan — this module's Open Question #2 decision.
func (c *Collector) CaptureAfterState(path string, ts *model.TrackSet) error {
	size, hash, err := fileFingerprint(path)
	if err != nil {
		return fmt.Errorf("capture after-state for %s: %w", path, err)
	}
	c.stats.AfterSize = size
	c.stats.AfterHash = hash
	if ts != nil {
		c.stats.AfterCounts = countByType(*ts)
	} else {
		c.stats.AfterCounts = c.stats.BeforeCounts
		logging.StatsWarn("stats %s: re-introspection unavailable, copying before-counts for after-state", c.stats.StatsID)
	}
	return nil
}

// Finalize copies the Workflow Processor's outcome into the stats record.
func (c *Collector) Finalize(result model.FileProcessingResult) {
	c.stats.Duration = result.TotalDuration
	c.stats.PhasesCompleted = result.PhasesCompleted
	c.stats.PhasesTotal = len(result.PhaseResults)
	c.stats.TotalChanges = result.TotalChanges
	c.stats.Success = result.Success
	c.stats.ErrorMessage = result.ErrorMessage
}

// Persist writes the accumulated record through repo inside a single
// transaction, per spec.md §4.K step 4. Derived fields (size_change,
// tracks_removed) are computed on read via model.ProcessingStats's own
// methods, not stored.
func (c *Collector) Persist(ctx context.Context, repo *storage.StatsRepo) error {
	if err := repo.Persist(ctx, c.stats); err != nil {
		return fmt.Errorf("persist stats %s: %w", c.stats.StatsID, err)
	}
	removed := c.stats.TracksRemoved()
	logging.Stats("persisted stats %s: size_change=%s tracks_removed=%+v duration=%s",
		c.stats.StatsID, humanize.Bytes(uint64(absInt64(c.stats.SizeChange()))), removed, c.stats.Duration)
	return nil
}

// Stats returns the accumulated record as built so far, primarily for
// tests and callers that need to inspect state before persisting.
func (c *Collector) Stats() model.ProcessingStats {
	return c.stats
}

func countByType(ts model.TrackSet) model.TrackTypeCounts {
	var counts model.TrackTypeCounts
	for _, t := range ts.Tracks {
		switch t.Type {
		case model.TrackVideo:
			counts.Video++
		case model.TrackAudio:
			counts.Audio++
		case model.TrackSubtitle:
			counts.Subtitle++
		case model.TrackAttachment:
			counts.Attachment++
		}
	}
	return counts
}

func fileFingerprint(path string) (size int64, hash string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, partialHashBytes); err != nil && err != io.EOF {
		return 0, "", err
	}
	return info.Size(), hex.EncodeToString(h.Sum(nil)), nil
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
