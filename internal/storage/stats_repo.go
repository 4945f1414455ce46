package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vpo/internal/model"
)

// StatsRepo persists ProcessingStats (spec.md §4.K). Persist writes the
// stats row plus its action_results/performance_metrics children inside a
// single transaction — a half-written stats record is treated as a bug,
// not a recoverable state.
type StatsRepo struct {
	engine *Engine
}

// Stats returns a repository bound to this engine.
func (e *Engine) Stats() *StatsRepo { return &StatsRepo{engine: e} }

// Persist writes s and its child rows atomically.
func (r *StatsRepo) Persist(ctx context.Context, s model.ProcessingStats) error {
	return r.engine.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processing_stats (
				stats_id, job_id, file_id, before_size, after_size,
				before_hash, after_hash,
				before_video, before_audio, before_subtitle, before_attachment,
				after_video, after_audio, after_subtitle, after_attachment,
				duration_ms, phases_completed, phases_total, total_changes,
				video_source_codec, video_target_codec, encoder,
				audio_tracks_transcoded, audio_tracks_preserved,
				success, error_message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.StatsID, s.JobID, s.FileID, s.BeforeSize, s.AfterSize,
			s.BeforeHash, s.AfterHash,
			s.BeforeCounts.Video, s.BeforeCounts.Audio, s.BeforeCounts.Subtitle, s.BeforeCounts.Attachment,
			s.AfterCounts.Video, s.AfterCounts.Audio, s.AfterCounts.Subtitle, s.AfterCounts.Attachment,
			s.Duration.Milliseconds(), s.PhasesCompleted, s.PhasesTotal, s.TotalChanges,
			s.VideoSourceCodec, s.VideoTargetCodec, string(s.Encoder),
			s.AudioTracksTranscoded, s.AudioTracksPreserved,
			boolToInt(s.Success), s.ErrorMessage)
		if err != nil {
			return fmt.Errorf("insert processing_stats: %w", err)
		}

		for _, a := range s.Actions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO action_results (stats_id, phase_name, operation_name,
					success, changes_made, duration_ms, message)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.StatsID, a.PhaseName, a.OperationName, boolToInt(a.Success),
				a.ChangesMade, a.Duration.Milliseconds(), a.Message); err != nil {
				return fmt.Errorf("insert action_result: %w", err)
			}
		}

		for _, m := range s.Metrics {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO performance_metrics (stats_id, phase_name, duration_ms, bytes_in, bytes_out)
				VALUES (?, ?, ?, ?, ?)`,
				s.StatsID, m.PhaseName, m.Duration.Milliseconds(), m.BytesIn, m.BytesOut); err != nil {
				return fmt.Errorf("insert performance_metric: %w", err)
			}
		}

		return nil
	})
}

// GetByStatsID reads a persisted ProcessingStats back, including its
// action_results/performance_metrics children. Used by tests and by any
// future reporting surface.
func (r *StatsRepo) GetByStatsID(ctx context.Context, statsID string) (*model.ProcessingStats, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	var s model.ProcessingStats
	var durationMs int64
	var encoder string
	var successInt int
	row := conn.QueryRowContext(ctx, `
		SELECT stats_id, job_id, file_id, before_size, after_size,
			before_hash, after_hash,
			before_video, before_audio, before_subtitle, before_attachment,
			after_video, after_audio, after_subtitle, after_attachment,
			duration_ms, phases_completed, phases_total, total_changes,
			video_source_codec, video_target_codec, encoder,
			audio_tracks_transcoded, audio_tracks_preserved,
			success, error_message
		FROM processing_stats WHERE stats_id = ?`, statsID)
	if err := row.Scan(&s.StatsID, &s.JobID, &s.FileID, &s.BeforeSize, &s.AfterSize,
		&s.BeforeHash, &s.AfterHash,
		&s.BeforeCounts.Video, &s.BeforeCounts.Audio, &s.BeforeCounts.Subtitle, &s.BeforeCounts.Attachment,
		&s.AfterCounts.Video, &s.AfterCounts.Audio, &s.AfterCounts.Subtitle, &s.AfterCounts.Attachment,
		&durationMs, &s.PhasesCompleted, &s.PhasesTotal, &s.TotalChanges,
		&s.VideoSourceCodec, &s.VideoTargetCodec, &encoder,
		&s.AudioTracksTranscoded, &s.AudioTracksPreserved,
		&successInt, &s.ErrorMessage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan processing_stats: %w", err)
	}
	s.Duration = msToDuration(durationMs)
	s.Encoder = model.EncoderType(encoder)
	s.Success = successInt != 0

	actionRows, err := conn.QueryContext(ctx, `
		SELECT phase_name, operation_name, success, changes_made, duration_ms, message
		FROM action_results WHERE stats_id = ? ORDER BY id`, statsID)
	if err != nil {
		return nil, fmt.Errorf("query action_results: %w", err)
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var a model.ActionResult
		var actionDurMs int64
		var succ int
		if err := actionRows.Scan(&a.PhaseName, &a.OperationName, &succ, &a.ChangesMade, &actionDurMs, &a.Message); err != nil {
			return nil, err
		}
		a.Success = succ != 0
		a.Duration = msToDuration(actionDurMs)
		s.Actions = append(s.Actions, a)
	}
	if err := actionRows.Err(); err != nil {
		return nil, err
	}

	metricRows, err := conn.QueryContext(ctx, `
		SELECT phase_name, duration_ms, bytes_in, bytes_out
		FROM performance_metrics WHERE stats_id = ? ORDER BY id`, statsID)
	if err != nil {
		return nil, fmt.Errorf("query performance_metrics: %w", err)
	}
	defer metricRows.Close()
	for metricRows.Next() {
		var m model.PerformanceMetric
		var metricDurMs int64
		if err := metricRows.Scan(&m.PhaseName, &metricDurMs, &m.BytesIn, &m.BytesOut); err != nil {
			return nil, err
		}
		m.Duration = msToDuration(metricDurMs)
		s.Metrics = append(s.Metrics, m)
	}
	if err := metricRows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
