// Package queue is the domain-level job queue (spec.md §4.I): claim,
// release, heartbeat, stale-job recovery, cancel, requeue, and stats,
// layered over internal/storage.JobsRepo. The queue owns no SQL itself —
// every invariant it names is enforced by the underlying repository's
// atomic statements.
package queue

import (
	"context"
	"time"

	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/storage"
)

// DefaultStaleTimeout is the heartbeat age past which a running job is
// considered abandoned and recovered back to queued (spec.md §4.I).
const DefaultStaleTimeout = 300 * time.Second

// Queue wraps an Engine's JobsRepo with the operations the worker runtime
// and any operator surface need.
type Queue struct {
	jobs *storage.JobsRepo
}

// New constructs a Queue bound to engine.
func New(engine *storage.Engine) *Queue {
	return &Queue{jobs: engine.Jobs()}
}

// Enqueue inserts j as a new queued job. The caller assigns j.ID and
// j.CreatedAt before calling.
func (q *Queue) Enqueue(ctx context.Context, j *model.Job) error {
	if err := q.jobs.Insert(ctx, j); err != nil {
		return err
	}
	logging.Queue("enqueued job %s (type=%s priority=%d file=%s)", j.ID, j.Type, j.Priority, j.FilePath)
	return nil
}

// ClaimNext claims the next eligible job for workerPID, or returns nil if
// the queue is empty.
func (q *Queue) ClaimNext(ctx context.Context, workerPID int) (*model.Job, error) {
	j, err := q.jobs.ClaimNextJob(ctx, workerPID)
	if err != nil {
		return nil, err
	}
	if j != nil {
		logging.Queue("claimed job %s (type=%s) for pid %d", j.ID, j.Type, workerPID)
	}
	return j, nil
}

// Release transitions a running job to a terminal status.
func (q *Queue) Release(ctx context.Context, id string, status model.JobStatus, opts storage.ReleaseOpts) error {
	if err := q.jobs.Release(ctx, id, status, opts); err != nil {
		return err
	}
	logging.Queue("released job %s as %s", id, status)
	return nil
}

// Heartbeat refreshes a running job's liveness timestamp.
func (q *Queue) Heartbeat(ctx context.Context, id string, pid int) (bool, error) {
	return q.jobs.UpdateHeartbeat(ctx, id, pid)
}

// UpdateProgress records a job's progress percent and opaque payload.
func (q *Queue) UpdateProgress(ctx context.Context, id string, percent int, payload []byte) error {
	return q.jobs.UpdateProgress(ctx, id, percent, payload)
}

// SetLogPath records the relative job log path on the job row.
func (q *Queue) SetLogPath(ctx context.Context, id, logPath string) error {
	return q.jobs.SetLogPath(ctx, id, logPath)
}

// RecoverStale resets running jobs whose heartbeat is older than timeout
// back to queued. Call at worker startup (spec.md §4.J step 3).
func (q *Queue) RecoverStale(ctx context.Context, timeout time.Duration) (int, error) {
	n, err := q.jobs.RecoverStaleJobs(ctx, timeout)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.QueueWarn("recovered %d stale job(s) (heartbeat timeout %v)", n, timeout)
	}
	return n, nil
}

// Cancel transitions a queued job to cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	return q.jobs.Cancel(ctx, id)
}

// Requeue transitions a failed or cancelled job back to queued.
func (q *Queue) Requeue(ctx context.Context, id string) (bool, error) {
	return q.jobs.Requeue(ctx, id)
}

// Stats returns per-status job counts.
func (q *Queue) Stats(ctx context.Context) (model.QueueStats, error) {
	return q.jobs.QueueStats(ctx)
}

// Get reads a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*model.Job, error) {
	return q.jobs.GetByID(ctx, id)
}

// PurgeOld deletes terminal jobs completed before cutoff.
func (q *Queue) PurgeOld(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := q.jobs.PurgeOld(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Queue("purged %d job(s) older than %v", n, retention)
	}
	return n, nil
}
