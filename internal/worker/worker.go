// Package worker implements the Worker Runtime (spec.md §4.J): a single
// long-lived process that, on start, purges retired jobs and recovers
// stale ones, then drains the job queue one job at a time under
// configurable stop conditions (max files / max duration / wall-clock
// deadline), spawning a heartbeat goroutine on a dedicated database
// connection for each job it runs.
//
// Grounded on the teacher's cmd/nerd/main.go for process-lifetime wiring
// (cobra PersistentPreRunE/PersistentPostRun initializing and tearing
// down internal/logging) and on spec.md §4.J/§5 for the drain loop and
// heartbeat-isolation requirements themselves, which have no teacher
// analog (the teacher has no durable job queue).
package worker

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"vpo/internal/config"
	"vpo/internal/logging"
	"vpo/internal/queue"
	"vpo/internal/storage"
	"vpo/internal/tooladapter"
	"vpo/internal/workflow"
)

// HeartbeatInterval is how often the worker refreshes a running job's
// liveness timestamp (spec.md §4.J step 4c).
const HeartbeatInterval = 30 * time.Second

// MaxHeartbeatFailures is the count of consecutive heartbeat failures
// that triggers a graceful shutdown request (spec.md §4.J step 4c, §7).
const MaxHeartbeatFailures = 3

// StopConditions bundles the worker's configurable drain-loop exit
// conditions (spec.md §4.J step 5 / §6's worker.max_files / max_duration
// / end_by knobs).
type StopConditions struct {
	MaxFiles    int           // 0 = unlimited
	MaxDuration time.Duration // 0 = unlimited
	EndBy       *time.Time    // nil = unlimited; an already-resolved absolute instant
}

// ParseEndBy resolves a "HH:MM" wall-clock string to the next occurrence
// of that time strictly after now, in now's location (local time when now
// comes from time.Now()), rolling to tomorrow if not later today.
func ParseEndBy(hhmm string, now time.Time) (*time.Time, error) {
	if hhmm == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil, fmt.Errorf("invalid end_by %q: %w", hhmm, err)
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return &candidate, nil
}

// Runtime is the worker process: one drain loop, one job at a time, plus
// one heartbeat goroutine per running job on a dedicated connection
// (spec.md §5: "the heartbeat thread uses a different database
// connection from the worker's job-execution code").
type Runtime struct {
	cfg       *config.Config
	engine    *storage.Engine
	queue     *queue.Queue
	adapters  *tooladapter.Adapters
	processor *workflow.Processor
	logsDir   string

	pid int

	stop      StopConditions
	startedAt time.Time
	filesDone int

	shutdown atomic.Bool
}

// New builds a Runtime. adapters is resolved once by the caller (tool
// capability discovery is expensive relative to job frequency, per
// SPEC_FULL.md's worker.go supplemented-feature note) and reused across
// every job this Runtime drains.
func New(cfg *config.Config, engine *storage.Engine, adapters *tooladapter.Adapters, stop StopConditions) *Runtime {
	return &Runtime{
		cfg:       cfg,
		engine:    engine,
		queue:     queue.New(engine),
		adapters:  adapters,
		processor: workflow.New(adapters, engine),
		logsDir:   cfg.LogsDir(),
		pid:       os.Getpid(),
		stop:      stop,
	}
}

// RequestShutdown sets the shutdown flag, the same flag SIGTERM/SIGINT
// handling and heartbeat-failure escalation set. The in-flight job's
// current operation runs to completion; no further job is claimed.
func (r *Runtime) RequestShutdown() {
	r.shutdown.Store(true)
}

// Run executes spec.md §4.J's startup sequence (log config, purge old
// jobs, recover stale jobs) and then the drain loop. ctx's cancellation
// is wired by the caller to SIGTERM/SIGINT and requests the same
// graceful shutdown as RequestShutdown.
func (r *Runtime) Run(ctx context.Context) error {
	logging.Worker("worker starting: pid=%d max_files=%d max_duration=%v end_by=%v cpu_cores=%d auto_purge=%dd",
		r.pid, r.stop.MaxFiles, r.stop.MaxDuration, r.stop.EndBy, r.cfg.Worker.CPUCores, r.cfg.Jobs.RetentionDays)

	r.startedAt = time.Now().UTC()

	if n, err := r.queue.PurgeOld(ctx, time.Duration(r.cfg.Jobs.RetentionDays)*24*time.Hour); err != nil {
		logging.WorkerWarn("purge old jobs failed: %v", err)
	} else if n > 0 {
		logging.Worker("purged %d old job(s) past retention", n)
	}

	if n, err := r.queue.RecoverStale(ctx, queue.DefaultStaleTimeout); err != nil {
		logging.WorkerWarn("recover stale jobs failed: %v", err)
	} else if n > 0 {
		logging.Worker("recovered %d stale job(s) at startup", n)
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			logging.Worker("shutdown requested (context cancelled)")
			r.RequestShutdown()
		case <-stopWatch:
		}
	}()

	for r.shouldContinue() {
		job, err := r.queue.ClaimNext(context.Background(), r.pid)
		if err != nil {
			return fmt.Errorf("claim next job: %w", err)
		}
		if job == nil {
			logging.Worker("queue drained, exiting after %d file(s)", r.filesDone)
			return nil
		}

		r.runJob(context.Background(), job)
		r.filesDone++
	}

	logging.Worker("stop condition reached after %d file(s)", r.filesDone)
	return nil
}

// shouldContinue implements §4.J's should_continue(): false on the first
// of {shutdown requested, max_files hit, max_duration elapsed, end_by
// reached}.
func (r *Runtime) shouldContinue() bool {
	if r.shutdown.Load() {
		return false
	}
	if r.stop.MaxFiles > 0 && r.filesDone >= r.stop.MaxFiles {
		return false
	}
	if r.stop.MaxDuration > 0 && time.Since(r.startedAt) >= r.stop.MaxDuration {
		return false
	}
	if r.stop.EndBy != nil && !time.Now().UTC().Before(*r.stop.EndBy) {
		return false
	}
	return true
}
