package storage

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema version this binary expects.
const CurrentSchemaVersion = 1

// migration is one forward-only DDL step, grounded on the teacher's
// internal/store/migrations.go versioned-migration shape.
type migration struct {
	Version int
	Name    string
	Stmts   []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path TEXT NOT NULL UNIQUE,
				filename TEXT NOT NULL,
				directory TEXT NOT NULL,
				extension TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				container TEXT NOT NULL,
				partial_hash TEXT NOT NULL,
				mod_time TIMESTAMP NOT NULL,
				last_scan_time TIMESTAMP NOT NULL,
				scan_status TEXT NOT NULL,
				scan_error TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_files_scan_status ON files(scan_status)`,

			`CREATE TABLE IF NOT EXISTS tracks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				track_index INTEGER NOT NULL,
				type TEXT NOT NULL,
				codec TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				is_default INTEGER NOT NULL DEFAULT 0,
				is_forced INTEGER NOT NULL DEFAULT 0,
				channels INTEGER NOT NULL DEFAULT 0,
				channel_layout TEXT NOT NULL DEFAULT '',
				width INTEGER NOT NULL DEFAULT 0,
				height INTEGER NOT NULL DEFAULT 0,
				frame_rate REAL NOT NULL DEFAULT 0,
				color_transfer TEXT NOT NULL DEFAULT '',
				color_primaries TEXT NOT NULL DEFAULT '',
				color_space TEXT NOT NULL DEFAULT '',
				color_range TEXT NOT NULL DEFAULT '',
				duration REAL NOT NULL DEFAULT 0,
				UNIQUE(file_id, track_index)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_file_id ON tracks(file_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tracks_type ON tracks(type)`,

			`CREATE TABLE IF NOT EXISTS language_analysis (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
				file_hash TEXT NOT NULL,
				primary_language TEXT NOT NULL,
				primary_percentage REAL NOT NULL,
				classification TEXT NOT NULL,
				plugin_name TEXT NOT NULL DEFAULT '',
				plugin_version TEXT NOT NULL DEFAULT '',
				model TEXT NOT NULL DEFAULT '',
				sample_positions TEXT NOT NULL DEFAULT '[]',
				speech_ratio REAL NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_language_analysis_track_id ON language_analysis(track_id)`,

			`CREATE TABLE IF NOT EXISTS language_segments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				analysis_id INTEGER NOT NULL REFERENCES language_analysis(id) ON DELETE CASCADE,
				language TEXT NOT NULL,
				start_time REAL NOT NULL,
				end_time REAL NOT NULL,
				confidence REAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_language_segments_analysis_id ON language_segments(analysis_id)`,

			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				file_id INTEGER REFERENCES files(id),
				file_path TEXT NOT NULL,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 100,
				policy_name TEXT NOT NULL DEFAULT '',
				policy_payload BLOB,
				progress_percent INTEGER NOT NULL DEFAULT 0,
				progress_payload BLOB,
				created_at TIMESTAMP NOT NULL,
				started_at TIMESTAMP,
				completed_at TIMESTAMP,
				worker_pid INTEGER NOT NULL DEFAULT 0,
				worker_heartbeat TIMESTAMP,
				error_message TEXT NOT NULL DEFAULT '',
				output_path TEXT NOT NULL DEFAULT '',
				summary_payload BLOB,
				log_path TEXT NOT NULL DEFAULT '',
				summary_json BLOB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, priority, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_heartbeat ON jobs(status, worker_heartbeat)`,

			// No FK cascade: ProcessingStats outlives its Job by design.
			`CREATE TABLE IF NOT EXISTS processing_stats (
				stats_id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				file_id INTEGER NOT NULL,
				before_size INTEGER NOT NULL DEFAULT 0,
				after_size INTEGER NOT NULL DEFAULT 0,
				before_hash TEXT NOT NULL DEFAULT '',
				after_hash TEXT NOT NULL DEFAULT '',
				before_video INTEGER NOT NULL DEFAULT 0,
				before_audio INTEGER NOT NULL DEFAULT 0,
				before_subtitle INTEGER NOT NULL DEFAULT 0,
				before_attachment INTEGER NOT NULL DEFAULT 0,
				after_video INTEGER NOT NULL DEFAULT 0,
				after_audio INTEGER NOT NULL DEFAULT 0,
				after_subtitle INTEGER NOT NULL DEFAULT 0,
				after_attachment INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				phases_completed INTEGER NOT NULL DEFAULT 0,
				phases_total INTEGER NOT NULL DEFAULT 0,
				total_changes INTEGER NOT NULL DEFAULT 0,
				video_source_codec TEXT NOT NULL DEFAULT '',
				video_target_codec TEXT NOT NULL DEFAULT '',
				encoder TEXT NOT NULL DEFAULT '',
				audio_tracks_transcoded INTEGER NOT NULL DEFAULT 0,
				audio_tracks_preserved INTEGER NOT NULL DEFAULT 0,
				success INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_processing_stats_job_id ON processing_stats(job_id)`,
			`CREATE INDEX IF NOT EXISTS idx_processing_stats_file_id ON processing_stats(file_id)`,

			`CREATE TABLE IF NOT EXISTS action_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				stats_id TEXT NOT NULL REFERENCES processing_stats(stats_id) ON DELETE CASCADE,
				phase_name TEXT NOT NULL,
				operation_name TEXT NOT NULL,
				success INTEGER NOT NULL,
				changes_made INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_action_results_stats_id ON action_results(stats_id)`,

			`CREATE TABLE IF NOT EXISTS performance_metrics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				stats_id TEXT NOT NULL REFERENCES processing_stats(stats_id) ON DELETE CASCADE,
				phase_name TEXT NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				bytes_in INTEGER NOT NULL DEFAULT 0,
				bytes_out INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_performance_metrics_stats_id ON performance_metrics(stats_id)`,

			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
		},
	},
}

// migrate applies any migration whose version exceeds the database's
// recorded schema_version, in order, each inside its own transaction.
func (e *Engine) migrate() error {
	if _, err := e.writer.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := currentVersion(e.writer)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := e.writer.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d (%s): %w", m.Version, m.Name, err)
		}
		for _, stmt := range m.Stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed clearing version row: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed recording version: %w", m.Version, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s) failed to commit: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema_version: %w", err)
	}
	return version, nil
}
