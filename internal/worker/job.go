package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vpo/internal/evaluator"
	"vpo/internal/introspect"
	"vpo/internal/joblog"
	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/stats"
	"vpo/internal/storage"
	"vpo/internal/tooladapter"
	"vpo/internal/workflow"
)

// progressCoalesceInterval bounds how often an in-flight job's progress
// row is rewritten (spec.md §9: "no more than 1 db write per second per
// job"); the final update is always forced through regardless.
const progressCoalesceInterval = time.Second

// progressReporter rate-limits progress writes for one job while always
// letting a forced (typically the final 100%) update through.
type progressReporter struct {
	ctx   context.Context
	queue interface {
		UpdateProgress(ctx context.Context, id string, percent int, payload []byte) error
	}
	jobID string

	mu   sync.Mutex
	last time.Time
}

func (p *progressReporter) report(percent int, payload []byte, force bool) {
	p.mu.Lock()
	now := time.Now()
	if !force && now.Sub(p.last) < progressCoalesceInterval {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.mu.Unlock()
	if err := p.queue.UpdateProgress(p.ctx, p.jobID, percent, payload); err != nil {
		logging.WorkerWarn("job %s: progress update failed: %v", p.jobID, err)
	}
}

// jobOutcome is runJob's internal summary of one job's terminal result,
// translated into a queue.Release call and a log footer.
type jobOutcome struct {
	Status      model.JobStatus
	Error       string
	OutputPath  string
	SummaryJSON []byte
}

// runJob executes spec.md §4.J step 4: allocate a log writer, start a
// heartbeat, dispatch by job type, release the job, and write the log
// footer. Any unhandled panic during dispatch is caught and converted to
// a failed job (§7: "unexpected exceptions in the worker drain loop are
// caught, recorded as failed ... and the loop continues").
func (r *Runtime) runJob(ctx context.Context, job *model.Job) {
	started := time.Now()
	logging.Worker("running job %s (type=%s file=%s)", job.ID, job.Type, job.FilePath)

	writer, err := joblog.New(r.logsDir, job.ID, joblog.DefaultBufferSize)
	if err != nil {
		logging.WorkerWarn("job %s: failed to open log writer: %v", job.ID, err)
		_ = r.queue.Release(ctx, job.ID, model.JobFailed, storage.ReleaseOpts{
			Error: fmt.Sprintf("failed to open job log: %v", err),
		})
		return
	}
	defer writer.Close()

	if err := r.queue.SetLogPath(ctx, job.ID, writer.RelativePath()); err != nil {
		logging.WorkerWarn("job %s: failed to record log path: %v", job.ID, err)
	}
	writer.WriteHeader(string(job.Type), job.FilePath,
		joblog.MetadataField{Key: "Policy", Value: job.PolicyName},
		joblog.MetadataField{Key: "Priority", Value: fmt.Sprintf("%d", job.Priority)},
	)

	hb, err := startHeartbeat(r.engine, job.ID, r.pid, HeartbeatInterval, r.RequestShutdown)
	if err != nil {
		logging.WorkerWarn("job %s: failed to start heartbeat: %v", job.ID, err)
	}

	outcome := r.dispatch(ctx, job, writer)

	if hb != nil {
		hb.stop()
	}

	duration := time.Since(started)
	writer.WriteFooter(outcome.Status == model.JobCompleted, &duration)

	if err := r.queue.Release(ctx, job.ID, outcome.Status, storage.ReleaseOpts{
		Error:          outcome.Error,
		OutputPath:     outcome.OutputPath,
		SummaryJSON:    outcome.SummaryJSON,
		SetProgress100: outcome.Status == model.JobCompleted,
	}); err != nil {
		logging.WorkerWarn("job %s: release failed: %v", job.ID, err)
	}
	logging.Worker("job %s finished: status=%s duration=%s", job.ID, outcome.Status, duration)
}

// dispatch recovers from a panic in any of the per-type handlers and
// converts it into a failed outcome, then routes by job.Type per
// spec.md §4.J step 4d.
func (r *Runtime) dispatch(ctx context.Context, job *model.Job, writer *joblog.JobLogWriter) (outcome jobOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			writer.WriteError(msg, nil)
			outcome = jobOutcome{Status: model.JobFailed, Error: msg}
		}
	}()

	switch job.Type {
	case model.JobTranscode:
		return r.handleTranscode(ctx, job, writer)
	case model.JobProcess, model.JobApply:
		// spec.md §4.J's dispatch table names "process" explicitly; "apply"
		// carries the same "run a policy's phases against a file" meaning
		// in the data model (§3) and has no separate algorithm described
		// anywhere in §4, so it is routed through the same Workflow
		// Processor path rather than left unimplemented.
		return r.handleProcess(ctx, job, writer)
	case model.JobScan:
		return r.handleScan(ctx, job, writer)
	case model.JobMove:
		writer.WriteError("move jobs are not implemented", nil)
		return jobOutcome{Status: model.JobFailed, Error: "move jobs are not implemented"}
	default:
		msg := fmt.Sprintf("unknown job type: %s", job.Type)
		writer.WriteError(msg, nil)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
}

// handleProcess decodes the job's policy payload and runs it through the
// Workflow Processor, capturing before/after statistics around the run.
func (r *Runtime) handleProcess(ctx context.Context, job *model.Job, writer *joblog.JobLogWriter) jobOutcome {
	var policy model.Policy
	if err := json.Unmarshal(job.PolicyPayload, &policy); err != nil {
		msg := fmt.Sprintf("invalid policy payload: %v", err)
		writer.WriteError(msg, err)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	writer.WriteSection(fmt.Sprintf("policy: %s (schema v%d, %d phase(s))", policy.Name, policy.SchemaVersion, len(policy.Phases)))

	introspectPipeline := introspect.New(r.adapters.Introspector, r.engine.Files(), r.engine.Tracks())
	before, err := introspectPipeline.Scan(ctx, job.FilePath)
	if err != nil {
		msg := fmt.Sprintf("initial scan failed: %v", err)
		writer.WriteError(msg, err)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	beforeTracks, err := r.engine.Tracks().GetByFileID(ctx, before.ID)
	if err != nil {
		logging.WorkerWarn("job %s: failed to load pre-run tracks: %v", job.ID, err)
	}

	collector := stats.NewCollector(job.ID, before.ID)
	if err := collector.CaptureBeforeState(job.FilePath, beforeTracks); err != nil {
		logging.WorkerWarn("job %s: capture before-state failed: %v", job.ID, err)
	}

	reporter := &progressReporter{ctx: ctx, queue: r.queue, jobID: job.ID}
	onProgress := func(phaseName string, index, total int, _ float64) {
		writer.WriteLine(fmt.Sprintf("phase %d/%d: %s", index+1, total, phaseName))
		pct := 0
		if total > 0 {
			pct = index * 100 / total
		}
		reporter.report(pct, nil, false)
	}

	result, procErr := r.processor.Process(ctx, workflow.Input{
		Path:       job.FilePath,
		Policy:     policy,
		Sidecar:    evaluator.Sidecar{},
		DryRun:     false,
		OnProgress: onProgress,
	})
	if procErr != nil {
		msg := procErr.Error()
		writer.WriteError(msg, procErr)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}

	for _, pr := range result.PhaseResults {
		writer.WriteLine(fmt.Sprintf("  phase %q: %s (changes=%d)", pr.PhaseName, pr.Outcome, pr.ChangesMade))
		collector.AddPhaseMetrics(model.PerformanceMetric{PhaseName: pr.PhaseName, Duration: pr.Duration})
		if pr.Outcome != model.PhaseSkipped {
			collector.AddAction(model.ActionResult{
				PhaseName:   pr.PhaseName,
				Success:     pr.Outcome == model.PhaseRan,
				ChangesMade: pr.ChangesMade,
				Duration:    pr.Duration,
				Message:     pr.Error,
			})
		}
	}

	if after, scanErr := introspectPipeline.Scan(ctx, job.FilePath); scanErr != nil {
		logging.WorkerWarn("job %s: post-run scan failed: %v", job.ID, scanErr)
		if err := collector.CaptureAfterState(job.FilePath, nil); err != nil {
			logging.WorkerWarn("job %s: capture after-state failed: %v", job.ID, err)
		}
	} else {
		afterTracks, err := r.engine.Tracks().GetByFileID(ctx, after.ID)
		if err != nil {
			logging.WorkerWarn("job %s: failed to load post-run tracks: %v", job.ID, err)
			_ = collector.CaptureAfterState(job.FilePath, nil)
		} else if err := collector.CaptureAfterState(job.FilePath, &afterTracks); err != nil {
			logging.WorkerWarn("job %s: capture after-state failed: %v", job.ID, err)
		}
	}
	collector.Finalize(result)
	if err := collector.Persist(ctx, r.engine.Stats()); err != nil {
		logging.WorkerWarn("job %s: persisting stats failed: %v", job.ID, err)
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"success":          result.Success,
		"phases_completed": result.PhasesCompleted,
		"phases_failed":    result.PhasesFailed,
		"phases_skipped":   result.PhasesSkipped,
		"total_changes":    result.TotalChanges,
		"failed_phase":     result.FailedPhase,
	})
	reporter.report(100, nil, true)

	if !result.Success {
		writer.WriteError(result.ErrorMessage, nil)
		return jobOutcome{Status: model.JobFailed, Error: result.ErrorMessage, SummaryJSON: summary}
	}
	return jobOutcome{Status: model.JobCompleted, OutputPath: job.FilePath, SummaryJSON: summary}
}

// handleTranscode decodes a TranscodeDecision from the job's policy
// payload and drives it through the Transcoder adapter, streaming
// progress ticks into the job's progress_payload.
func (r *Runtime) handleTranscode(ctx context.Context, job *model.Job, writer *joblog.JobLogWriter) jobOutcome {
	var decision tooladapter.TranscodeDecision
	if err := json.Unmarshal(job.PolicyPayload, &decision); err != nil {
		msg := fmt.Sprintf("invalid transcode decision payload: %v", err)
		writer.WriteError(msg, err)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	if !r.adapters.Transcoder.Available(ctx) {
		msg := fmt.Sprintf("transcoder %q is not available", r.adapters.Transcoder.Name())
		writer.WriteError(msg, nil)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	writer.WriteSection(fmt.Sprintf("transcode: video=%s audio_tracks=%d", decision.VideoTargetCodec, len(decision.AudioTargets)))

	reporter := &progressReporter{ctx: ctx, queue: r.queue, jobID: job.ID}
	onProgress := func(tick tooladapter.ProgressTick) {
		payload, _ := json.Marshal(tick)
		reporter.report(0, payload, false)
	}

	outputPath, err := r.adapters.Transcoder.Transcode(ctx, job.FilePath, decision, onProgress)
	if err != nil {
		msg := fmt.Sprintf("transcode failed: %v", err)
		writer.WriteSubprocess(r.adapters.Transcoder.Name(), "", err.Error(), 1)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	reporter.report(100, nil, true)
	writer.WriteLine(fmt.Sprintf("transcode succeeded: output=%s", outputPath))
	return jobOutcome{Status: model.JobCompleted, OutputPath: outputPath}
}

// handleScan re-runs the Introspection Pipeline against the job's file,
// refreshing its File row and wholesale-replacing its tracks.
func (r *Runtime) handleScan(ctx context.Context, job *model.Job, writer *joblog.JobLogWriter) jobOutcome {
	pipeline := introspect.New(r.adapters.Introspector, r.engine.Files(), r.engine.Tracks())
	f, err := pipeline.Scan(ctx, job.FilePath)
	if err != nil {
		msg := fmt.Sprintf("scan failed: %v", err)
		writer.WriteError(msg, err)
		return jobOutcome{Status: model.JobFailed, Error: msg}
	}
	if f.ScanStatus == model.ScanStatusError {
		writer.WriteError(f.ScanError, nil)
		return jobOutcome{Status: model.JobFailed, Error: f.ScanError}
	}
	writer.WriteLine(fmt.Sprintf("scanned %s: container=%s size=%d", job.FilePath, f.Container, f.SizeBytes))
	summary, _ := json.Marshal(map[string]interface{}{"container": f.Container, "size": f.SizeBytes})
	return jobOutcome{Status: model.JobCompleted, SummaryJSON: summary}
}
