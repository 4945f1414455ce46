package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vpo/internal/model"
)

// JobsRepo provides the job queue's atomic operations (§4.I). Claim runs
// its select-then-update inside one BEGIN IMMEDIATE transaction; release,
// heartbeat, recover, cancel, and requeue are each a single UPDATE issued
// under the engine's writer mutex, so status transitions never interleave.
type JobsRepo struct {
	engine *Engine
}

// Jobs returns a repository bound to this engine.
func (e *Engine) Jobs() *JobsRepo { return &JobsRepo{engine: e} }

// Insert adds a new queued job. The caller assigns j.ID (a UUIDv4) and
// j.CreatedAt before calling.
func (r *JobsRepo) Insert(ctx context.Context, j *model.Job) error {
	_, err := r.engine.ExecuteWrite(ctx, `
		INSERT INTO jobs (id, file_id, file_path, type, status, priority,
			policy_name, policy_payload, progress_percent, created_at, worker_pid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0)`,
		j.ID, nullableFileID(j.FileID), j.FilePath, string(j.Type), string(model.JobQueued),
		j.Priority, j.PolicyName, j.PolicyPayload, j.CreatedAt)
	return err
}

// ClaimNextJob implements §4.I's claim algorithm: select the lowest
// priority, then oldest created_at, queued job; transition it to running.
// Returns nil if none is queued.
func (r *JobsRepo) ClaimNextJob(ctx context.Context, workerPID int) (*model.Job, error) {
	var claimed *model.Job
	err := r.engine.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id FROM jobs WHERE status = ?
			ORDER BY priority ASC, created_at ASC LIMIT 1`, string(model.JobQueued))
		var id string
		switch err := row.Scan(&id); err {
		case nil:
		case sql.ErrNoRows:
			return nil
		default:
			return fmt.Errorf("select next queued job: %w", err)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, worker_pid = ?, started_at = ?,
				error_message = '', progress_percent = 0, progress_payload = NULL
			WHERE id = ?`, string(model.JobRunning), workerPID, now, id); err != nil {
			return fmt.Errorf("claim job %s: %w", id, err)
		}

		job, err := scanJobRow(tx.QueryRowContext(ctx, jobSelectQuery+` WHERE id = ?`, id))
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	return claimed, err
}

// ReleaseOpts carries the optional columns Release writes alongside a
// job's terminal status.
type ReleaseOpts struct {
	Error          string
	OutputPath     string
	SummaryPayload []byte
	SummaryJSON    []byte
	SetProgress100 bool
}

// Release transitions job id from running to a terminal status.
func (r *JobsRepo) Release(ctx context.Context, id string, status model.JobStatus, opts ReleaseOpts) error {
	if !status.IsTerminal() {
		return fmt.Errorf("release: status %q is not terminal", status)
	}
	now := time.Now().UTC()
	var progressSet string
	if opts.SetProgress100 {
		progressSet = ", progress_percent = 100"
	}

	_, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET status = ?, completed_at = ?, error_message = ?,
			output_path = ?, summary_payload = ?, summary_json = ?`+progressSet+`
		WHERE id = ? AND status = ?`,
		string(status), now, opts.Error, opts.OutputPath,
		opts.SummaryPayload, opts.SummaryJSON, id, string(model.JobRunning))
	return err
}

// UpdateHeartbeat refreshes worker_heartbeat for a running job, returning
// whether a row actually changed (false if the job isn't running).
func (r *JobsRepo) UpdateHeartbeat(ctx context.Context, id string, pid int) (bool, error) {
	affected, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET worker_heartbeat = ?, worker_pid = ?
		WHERE id = ? AND status = ?`,
		time.Now().UTC(), pid, id, string(model.JobRunning))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateHeartbeatDirect is UpdateHeartbeat's sibling for callers holding
// their own *sql.DB (the worker heartbeat goroutine's secondary writer
// connection, see Engine.OpenSecondaryWriter) rather than going through
// the engine's shared writer mutex.
func UpdateHeartbeatDirect(ctx context.Context, db *sql.DB, id string, pid int) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs SET worker_heartbeat = ?, worker_pid = ?
		WHERE id = ? AND status = ?`,
		time.Now().UTC(), pid, id, string(model.JobRunning))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateProgress sets progress_percent/progress_payload for a running job.
func (r *JobsRepo) UpdateProgress(ctx context.Context, id string, percent int, payload []byte) error {
	_, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET progress_percent = ?, progress_payload = ?
		WHERE id = ? AND status = ?`, percent, payload, id, string(model.JobRunning))
	return err
}

// SetLogPath records the relative job log path.
func (r *JobsRepo) SetLogPath(ctx context.Context, id, logPath string) error {
	_, err := r.engine.ExecuteWrite(ctx, `UPDATE jobs SET log_path = ? WHERE id = ?`, logPath, id)
	return err
}

// RecoverStaleJobs resets running jobs whose heartbeat is older than
// now-timeout back to queued, clearing worker_pid and started_at. Returns
// the count of recovered jobs.
func (r *JobsRepo) RecoverStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	affected, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET status = ?, worker_pid = 0, started_at = NULL
		WHERE status = ? AND worker_heartbeat IS NOT NULL AND worker_heartbeat < ?`,
		string(model.JobQueued), string(model.JobRunning), cutoff)
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Cancel transitions a queued job to cancelled. Running jobs are not
// cancellable from this path.
func (r *JobsRepo) Cancel(ctx context.Context, id string) (bool, error) {
	affected, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET status = ? WHERE id = ? AND status = ?`,
		string(model.JobCancelled), id, string(model.JobQueued))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Requeue transitions a failed or cancelled job back to queued.
func (r *JobsRepo) Requeue(ctx context.Context, id string) (bool, error) {
	affected, err := r.engine.ExecuteWrite(ctx, `
		UPDATE jobs SET status = ?, error_message = '', progress_percent = 0,
			progress_payload = NULL, completed_at = NULL
		WHERE id = ? AND status IN (?, ?)`,
		string(model.JobQueued), id, string(model.JobFailed), string(model.JobCancelled))
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetByID reads one job by ID.
func (r *JobsRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()
	return scanJobRow(conn.QueryRowContext(ctx, jobSelectQuery+` WHERE id = ?`, id))
}

// QueueStats returns per-status counts.
func (r *JobsRepo) QueueStats(ctx context.Context) (model.QueueStats, error) {
	conn, closer, err := r.engine.ReadConn(ctx)
	if err != nil {
		return model.QueueStats{}, err
	}
	defer closer()

	rows, err := conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.QueueStats{}, err
		}
		switch model.JobStatus(status) {
		case model.JobQueued:
			stats.Queued = n
		case model.JobRunning:
			stats.Running = n
		case model.JobCompleted:
			stats.Completed = n
		case model.JobFailed:
			stats.Failed = n
		case model.JobCancelled:
			stats.Cancelled = n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}

// PurgeOld deletes terminal jobs older than cutoff (by completed_at).
// Returns the count of deleted rows.
func (r *JobsRepo) PurgeOld(ctx context.Context, cutoff time.Time) (int, error) {
	affected, err := r.engine.ExecuteWrite(ctx, `
		DELETE FROM jobs WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(model.JobCompleted), string(model.JobFailed), string(model.JobCancelled), cutoff)
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

const jobSelectQuery = `
	SELECT id, file_id, file_path, type, status, priority, policy_name,
		policy_payload, progress_percent, progress_payload, created_at,
		started_at, completed_at, worker_pid, worker_heartbeat, error_message,
		output_path, summary_payload, log_path, summary_json
	FROM jobs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row rowScanner) (*model.Job, error) {
	var j model.Job
	var typ, status string
	var fileID sql.NullInt64
	var startedAt, completedAt, heartbeat sql.NullTime

	err := row.Scan(&j.ID, &fileID, &j.FilePath, &typ, &status, &j.Priority,
		&j.PolicyName, &j.PolicyPayload, &j.ProgressPercent, &j.ProgressPayload,
		&j.CreatedAt, &startedAt, &completedAt, &j.WorkerPID, &heartbeat,
		&j.ErrorMessage, &j.OutputPath, &j.SummaryPayload, &j.LogPath, &j.SummaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	if fileID.Valid {
		v := fileID.Int64
		j.FileID = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if heartbeat.Valid {
		t := heartbeat.Time
		j.WorkerHeartbeat = &t
	}
	return &j, nil
}

func nullableFileID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
