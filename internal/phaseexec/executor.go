// Package phaseexec implements the Phase Executor (spec.md §4.G): it
// carries out one phase's already-planned operations against a file,
// routing each to the correct tool adapter, tracking whether the file was
// modified, and rolling back to a pre-phase backup if something goes
// wrong in a way the per-operation error handling didn't anticipate.
package phaseexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/tooladapter"
)

// Input bundles one (file, phase) execution request.
type Input struct {
	Path      string
	Container string
	TrackSet  model.TrackSet
	Plan      model.Plan
	OnError   model.OnErrorMode
	DryRun    bool
}

// Result is what the Workflow Processor needs to know about one phase run.
type Result struct {
	Success      bool
	ChangesMade  int
	FileModified bool
	Actions      []model.ActionResult
	Duration     time.Duration
	Message      string
}

// Executor dispatches Plan operations to a fixed set of tool adapters.
type Executor struct {
	adapters *tooladapter.Adapters
}

// New builds an Executor over adapters.
func New(adapters *tooladapter.Adapters) *Executor {
	return &Executor{adapters: adapters}
}

// ExecutePhase runs in.Plan.Operations in canonical order, per spec.md §4.G.
func (e *Executor) ExecutePhase(ctx context.Context, in Input) (Result, error) {
	start := time.Now()

	if in.Plan.IsEmpty() {
		return Result{Success: true, Duration: time.Since(start), Message: "Phase has no operations defined"}, nil
	}

	logging.Executor("executing phase %q with %d operation(s)", in.Plan.PhaseName, len(in.Plan.Operations))

	var backupPath string
	if !in.DryRun {
		backupPath = e.createBackup(in.Path)
	}

	state := &execState{fileModified: false, totalChanges: 0}

	result, err := e.runOperations(ctx, in, state)
	if err != nil {
		var phaseErr *model.PhaseExecutionError
		if asPhaseExecutionError(err, &phaseErr) {
			// Controlled failure (effective on-error = fail): no rollback,
			// re-raised as-is. The backup is deliberately left on disk.
			return Result{}, err
		}
		// Unexpected failure: roll back if the file was actually touched.
		e.handlePhaseFailure(in, state, backupPath, err)
		return Result{}, &model.PhaseExecutionError{Phase: in.Plan.PhaseName, Message: err.Error(), Cause: err}
	}

	e.cleanupBackup(backupPath)

	result.Duration = time.Since(start)
	result.Message = fmt.Sprintf("Completed %d operation(s)", len(result.Actions))
	result.Success = true
	return result, nil
}

type execState struct {
	fileModified bool
	totalChanges int
}

func (e *Executor) runOperations(ctx context.Context, in Input, state *execState) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during phase %q: %v", in.Plan.PhaseName, r)
		}
	}()

	for _, op := range in.Plan.Operations {
		opStart := time.Now()
		name := operationName(op.Kind)
		changes, dispatchErr := e.dispatch(ctx, in, op)
		duration := time.Since(opStart)

		if dispatchErr == nil {
			state.totalChanges += changes
			if changes > 0 {
				state.fileModified = true
			}
			result.Actions = append(result.Actions, model.ActionResult{
				PhaseName: in.Plan.PhaseName, OperationName: name, Success: true,
				ChangesMade: changes, Duration: duration,
			})
			continue
		}

		result.Actions = append(result.Actions, model.ActionResult{
			PhaseName: in.Plan.PhaseName, OperationName: name, Success: false,
			Duration: duration, Message: dispatchErr.Error(),
		})

		switch in.OnError {
		case model.OnErrorFail:
			return result, &model.PhaseExecutionError{Phase: in.Plan.PhaseName, Operation: name, Message: dispatchErr.Error(), Cause: dispatchErr}
		case model.OnErrorSkip:
			logging.ExecutorWarn("operation %q failed in phase %q, skipping remaining operations: %v", name, in.Plan.PhaseName, dispatchErr)
			return e.finish(state, result), nil
		default: // continue
			continue
		}
	}

	return e.finish(state, result), nil
}

func (e *Executor) finish(state *execState, result Result) Result {
	result.ChangesMade = state.totalChanges
	result.FileModified = state.fileModified
	return result
}

func asPhaseExecutionError(err error, target **model.PhaseExecutionError) bool {
	if pe, ok := err.(*model.PhaseExecutionError); ok {
		*target = pe
		return true
	}
	return false
}

// dispatch routes one operation to the adapter its kind requires, returning
// the number of changes it made.
func (e *Executor) dispatch(ctx context.Context, in Input, op model.Operation) (int, error) {
	switch op.Kind {
	case model.OpContainerChange:
		return e.dispatchRemux(ctx, in, tooladapter.RoutePlan{ChangesContainer: true, TargetContainer: op.ContainerTarget})

	case model.OpAudioFilter:
		return e.dispatchFilter(ctx, in, op.AudioDispositions)

	case model.OpSubtitleFilter:
		return e.dispatchFilter(ctx, in, op.SubtitleDispositions)

	case model.OpAttachmentFilter:
		return e.dispatchFilter(ctx, in, op.AttachmentDispositions)

	case model.OpTrackOrder:
		if len(op.TrackOrderPermutation) == 0 {
			return 0, nil
		}
		return e.dispatchRemux(ctx, in, tooladapter.RoutePlan{ReordersTracks: true, RemuxPlan: tooladapter.RemuxPlan{TrackOrder: op.TrackOrderPermutation}})

	case model.OpDefaultFlags:
		return e.dispatchDefaultFlags(ctx, in, op.DefaultFlagChanges)

	case model.OpConditional:
		return e.dispatchConditional(in, op.ConditionalResult)

	case model.OpAudioSynthesis:
		return e.dispatchAudioSynthesis(ctx, in, op)

	case model.OpVideoTranscode:
		return e.dispatchVideoTranscode(ctx, in, op.VideoTranscodeDecision)

	case model.OpAudioTranscode:
		return e.dispatchAudioTranscode(ctx, in, op.AudioTranscodeTargets)

	case model.OpTranscription:
		// The transcription model's invocation shell is an external
		// collaborator, not this core's concern (spec.md §1).
		logging.ExecutorWarn("phase %q: transcription operation is not implemented by this core, skipping", in.Plan.PhaseName)
		return 0, nil

	case model.OpFileTimestamp:
		return e.dispatchFileTimestamp(in, op.FileTimestamp)

	case model.OpAudioActions:
		return e.dispatchTrackActions(ctx, in, model.TrackAudio, op.AudioActions)

	case model.OpSubtitleActions:
		return e.dispatchTrackActions(ctx, in, model.TrackSubtitle, op.SubtitleActions)

	default:
		return 0, fmt.Errorf("unknown operation kind %v", op.Kind)
	}
}

func (e *Executor) dispatchRemux(ctx context.Context, in Input, rp tooladapter.RoutePlan) (int, error) {
	remuxer, editor, err := e.adapters.SelectRemuxOrEditor(ctx, in.Container, rp)
	if err != nil {
		return 0, err
	}
	if in.DryRun {
		return 1, nil
	}
	if remuxer != nil {
		if _, err := remuxer.Remux(ctx, in.Path, rp.RemuxPlan); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if editor != nil && !rp.MetadataEdit.IsEmpty() {
		if err := editor.Apply(ctx, in.Path, rp.MetadataEdit); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, nil
}

func (e *Executor) dispatchFilter(ctx context.Context, in Input, dispositions []model.TrackDisposition) (int, error) {
	var keep []int
	removed := 0
	for _, d := range dispositions {
		if d.Keep {
			keep = append(keep, d.TrackIndex)
		} else {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return e.dispatchRemux(ctx, in, tooladapter.RoutePlan{
		RemovesTracks: true,
		RemuxPlan:     tooladapter.RemuxPlan{KeepTrackIndices: keep},
	})
}

func (e *Executor) dispatchDefaultFlags(ctx context.Context, in Input, changes []model.DefaultFlagChange) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	edit := tooladapter.MetadataEdit{}
	for _, c := range changes {
		edit.SetDefault = append(edit.SetDefault, tooladapter.TrackFlagSet{TrackIndex: c.TrackIndex, Value: c.SetDefault})
	}
	return e.dispatchRemux(ctx, in, tooladapter.RoutePlan{MetadataEdit: edit})
}

func (e *Executor) dispatchConditional(in Input, result *model.ConditionalRuleResult) (int, error) {
	if result == nil {
		return 0, nil
	}
	for _, w := range result.AppliedWarn {
		logging.ExecutorWarn("phase %q rule %q: %s", in.Plan.PhaseName, result.RuleName, w)
	}
	if len(result.AppliedFail) > 0 {
		return 0, fmt.Errorf("rule %q: %s", result.RuleName, strings.Join(result.AppliedFail, "; "))
	}
	return 0, nil
}

// dispatchAudioSynthesis routes new-track creation through the Transcoder:
// each resolved synthesis names a source track to re-encode into a new
// target track, which is the same subprocess shape as an audio transcode.
func (e *Executor) dispatchAudioSynthesis(ctx context.Context, in Input, op model.Operation) (int, error) {
	if len(op.Synthesis) == 0 {
		for _, skip := range op.SkippedSynthesis {
			logging.ExecutorDebug("phase %q: audio synthesis %q skipped (%s)", in.Plan.PhaseName, skip.Name, skip.Reason)
		}
		return 0, nil
	}

	decision := tooladapter.TranscodeDecision{}
	for _, s := range op.Synthesis {
		decision.AudioTargets = append(decision.AudioTargets, tooladapter.AudioTranscodeInstruction{
			TrackIndex:  s.SourceTrackIdx,
			TargetCodec: s.TargetCodec,
			BitrateKbps: s.BitrateKbps,
		})
	}
	if decision.IsEmpty() {
		return 0, nil
	}
	if in.DryRun {
		return len(op.Synthesis), nil
	}
	if !e.adapters.Transcoder.Available(ctx) {
		return 0, &model.ToolUnavailableError{Tool: e.adapters.Transcoder.Name(), Purpose: "audio synthesis"}
	}
	if _, err := e.adapters.Transcoder.Transcode(ctx, in.Path, decision, nil); err != nil {
		return 0, err
	}
	return len(op.Synthesis), nil
}

func (e *Executor) dispatchVideoTranscode(ctx context.Context, in Input, decision *model.VideoTranscodeDecision) (int, error) {
	if decision == nil || !decision.NeedsTranscode {
		return 0, nil
	}
	if in.DryRun {
		return 1, nil
	}
	if !e.adapters.Transcoder.Available(ctx) {
		return 0, &model.ToolUnavailableError{Tool: e.adapters.Transcoder.Name(), Purpose: "video transcode"}
	}
	td := tooladapter.TranscodeDecision{
		VideoTargetCodec: decision.TargetCodec,
		VideoEncoder:     decision.TargetEncoder,
		TargetWidth:      decision.TargetWidth,
		TargetHeight:     decision.TargetHeight,
	}
	if _, err := e.adapters.Transcoder.Transcode(ctx, in.Path, td, nil); err != nil {
		return 0, err
	}
	return 1, nil
}

func (e *Executor) dispatchAudioTranscode(ctx context.Context, in Input, targets []model.AudioTranscodeTarget) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	decision := tooladapter.TranscodeDecision{}
	for _, t := range targets {
		decision.AudioTargets = append(decision.AudioTargets, tooladapter.AudioTranscodeInstruction{
			TrackIndex: t.TrackIndex, TargetCodec: t.TargetCodec, BitrateKbps: t.BitrateKbps,
		})
	}
	if in.DryRun {
		return len(targets), nil
	}
	if !e.adapters.Transcoder.Available(ctx) {
		return 0, &model.ToolUnavailableError{Tool: e.adapters.Transcoder.Name(), Purpose: "audio transcode"}
	}
	if _, err := e.adapters.Transcoder.Transcode(ctx, in.Path, decision, nil); err != nil {
		return 0, err
	}
	return len(targets), nil
}

func (e *Executor) dispatchFileTimestamp(in Input, op *model.FileTimestampOp) (int, error) {
	if op == nil || in.DryRun {
		return 0, nil
	}
	if op.PreserveOriginal {
		return 0, nil
	}
	if !op.SetToNow {
		return 0, nil
	}
	now := time.Now()
	if err := os.Chtimes(in.Path, now, now); err != nil {
		return 0, err
	}
	return 1, nil
}

// dispatchTrackActions resolves ConditionalAction side effects (set-forced,
// set-default, set-language) against the phase's pre-run track set and
// applies them through a MetadataEditor.
func (e *Executor) dispatchTrackActions(ctx context.Context, in Input, trackType model.TrackType, actions []model.ConditionalAction) (int, error) {
	if len(actions) == 0 {
		return 0, nil
	}
	edit := tooladapter.MetadataEdit{}
	for _, a := range actions {
		targets := matchingTracks(in.TrackSet, trackType, a)
		switch a.Kind {
		case model.ActionSetForced:
			for _, idx := range targets {
				edit.SetForced = append(edit.SetForced, tooladapter.TrackFlagSet{TrackIndex: idx, Value: a.BoolValue})
			}
		case model.ActionSetDefault:
			for _, idx := range targets {
				edit.SetDefault = append(edit.SetDefault, tooladapter.TrackFlagSet{TrackIndex: idx, Value: a.BoolValue})
			}
		case model.ActionSetLanguage:
			lang := a.NewLanguage
			if lang == "" {
				continue // plugin-field resolution happens upstream of this adapter boundary
			}
			for _, idx := range targets {
				edit.SetLanguage = append(edit.SetLanguage, tooladapter.TrackLanguageSet{TrackIndex: idx, Language: lang})
			}
		}
	}
	if edit.IsEmpty() {
		return 0, nil
	}
	return e.dispatchRemux(ctx, in, tooladapter.RoutePlan{MetadataEdit: edit})
}

func matchingTracks(ts model.TrackSet, trackType model.TrackType, a model.ConditionalAction) []int {
	var out []int
	matchLang := a.MatchLanguage
	if matchLang == "" {
		matchLang = a.Language
	}
	for _, t := range ts.ByType(trackType) {
		if matchLang != "" && !strings.EqualFold(t.Language, matchLang) {
			continue
		}
		out = append(out, t.TrackIndex)
	}
	return out
}

func operationName(kind model.OperationKind) string {
	switch kind {
	case model.OpContainerChange:
		return "container_change"
	case model.OpAudioFilter:
		return "audio_filter"
	case model.OpSubtitleFilter:
		return "subtitle_filter"
	case model.OpAttachmentFilter:
		return "attachment_filter"
	case model.OpTrackOrder:
		return "track_order"
	case model.OpDefaultFlags:
		return "default_flags"
	case model.OpConditional:
		return "conditional"
	case model.OpAudioSynthesis:
		return "audio_synthesis"
	case model.OpVideoTranscode:
		return "video_transcode"
	case model.OpAudioTranscode:
		return "audio_transcode"
	case model.OpTranscription:
		return "transcription"
	case model.OpFileTimestamp:
		return "file_timestamp"
	case model.OpAudioActions:
		return "audio_actions"
	case model.OpSubtitleActions:
		return "subtitle_actions"
	default:
		return "operation_" + strconv.Itoa(int(kind))
	}
}

// createBackup copies path to path+".vpo-backup", returning "" (and
// logging a warning) if the copy fails — backup creation failure is
// non-fatal, matching spec.md §4.G step 2.
func (e *Executor) createBackup(path string) string {
	backupPath := path + ".vpo-backup"
	if err := copyFile(path, backupPath); err != nil {
		logging.ExecutorWarn("failed to create backup for %s: %v", path, err)
		return ""
	}
	logging.ExecutorDebug("created backup at %s", backupPath)
	return backupPath
}

func (e *Executor) cleanupBackup(backupPath string) {
	if backupPath == "" {
		return
	}
	if _, err := os.Stat(backupPath); err != nil {
		return
	}
	if err := os.Remove(backupPath); err != nil {
		logging.ExecutorWarn("failed to remove backup file %s: %v", backupPath, err)
		return
	}
	logging.ExecutorDebug("removed backup file: %s", backupPath)
}

func (e *Executor) handlePhaseFailure(in Input, state *execState, backupPath string, cause error) {
	logging.ExecutorWarn("phase %q failed: %v", in.Plan.PhaseName, cause)
	if !state.fileModified || backupPath == "" {
		return
	}
	logging.Executor("attempting rollback of %s", in.Path)
	if err := copyFile(backupPath, in.Path); err != nil {
		logging.ExecutorWarn("rollback failed for %s: %v", in.Path, err)
		return
	}
	logging.Executor("rollback successful for %s", in.Path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
