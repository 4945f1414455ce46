// Package workflow implements the Workflow Processor (spec.md §4.H): it
// drives one file through a Policy's phases in order, consulting the
// Planner for gating and plan-building, the Phase Executor for carrying
// plans out, and the Introspection Pipeline to refresh the in-memory
// track set whenever a phase actually changes the file.
package workflow

import (
	"context"
	"fmt"
	"time"

	"vpo/internal/evaluator"
	"vpo/internal/introspect"
	"vpo/internal/logging"
	"vpo/internal/model"
	"vpo/internal/phaseexec"
	"vpo/internal/planner"
	"vpo/internal/storage"
	"vpo/internal/tooladapter"
)

// ProgressFunc is invoked once per phase, before gating, mirroring §4.H
// step 2a's (phase_name, index, total, fraction) progress tuple.
type ProgressFunc func(phaseName string, index, total int, fraction float64)

// Input bundles one file's processing request.
type Input struct {
	Path     string
	Policy   model.Policy
	Sidecar  evaluator.Sidecar
	DryRun   bool
	OnProgress ProgressFunc
}

// Processor drives a file through a policy's phases.
type Processor struct {
	adapters   *tooladapter.Adapters
	introspect *introspect.Pipeline
	executor   *phaseexec.Executor
	tracks     *storage.TracksRepo
}

// New builds a Processor from the shared tool adapters and storage engine.
func New(adapters *tooladapter.Adapters, engine *storage.Engine) *Processor {
	return &Processor{
		adapters:   adapters,
		introspect: introspect.New(adapters.Introspector, engine.Files(), engine.Tracks()),
		executor:   phaseexec.New(adapters),
		tracks:     engine.Tracks(),
	}
}

// Process runs in.Policy's phases against in.Path in order, per spec.md
// §4.H. It always returns a FileProcessingResult; the returned error is
// non-nil only for failures the caller cannot recover from locally (e.g.
// the initial introspection failing outright).
func (p *Processor) Process(ctx context.Context, in Input) (model.FileProcessingResult, error) {
	start := time.Now()

	file, err := p.introspect.Scan(ctx, in.Path)
	if err != nil {
		return model.FileProcessingResult{}, fmt.Errorf("initial introspection of %s: %w", in.Path, err)
	}

	ts, err := p.loadTrackSet(ctx, file.ID)
	if err != nil {
		return model.FileProcessingResult{}, err
	}

	result := model.FileProcessingResult{Success: true}
	history := planner.PhaseHistory{}
	total := len(in.Policy.Phases)
	container := file.Container
	var priorSynthCount int
	failing := false

	for i, phase := range in.Policy.Phases {
		if in.OnProgress != nil {
			in.OnProgress(phase.Name, i, total, 0.0)
		}

		if failing {
			result.PhaseResults = append(result.PhaseResults, model.PhaseResult{
				PhaseName: phase.Name, Outcome: model.PhaseSkipped, SkipReason: "earlier phase failed with on_error=fail",
			})
			result.PhasesSkipped++
			continue
		}

		plan, err := planner.BuildPlan(phase, planner.Input{
			TrackSet:          ts,
			Sidecar:           in.Sidecar,
			History:           history,
			Config:            in.Policy.Config,
			Filename:          file.Filename,
			Path:              in.Path,
			AvailableEncoders: p.availableEncoders(ctx),
			PriorSynthCount:   priorSynthCount,
		})
		if err != nil {
			result.PhaseResults = append(result.PhaseResults, model.PhaseResult{
				PhaseName: phase.Name, Outcome: model.PhaseFailed, Error: err.Error(),
			})
			result.PhasesFailed++
			result.Success = false
			result.FailedPhase = phase.Name
			result.ErrorMessage = err.Error()
			if phase.EffectiveOnError(in.Policy.Config.OnError) == model.OnErrorFail {
				failing = true
			}
			continue
		}

		if plan.Skipped {
			history[phase.Name] = false
			result.PhaseResults = append(result.PhaseResults, model.PhaseResult{
				PhaseName: phase.Name, Outcome: model.PhaseSkipped, SkipReason: plan.SkipReason,
			})
			result.PhasesSkipped++
			continue
		}

		priorSynthCount += countSynthesized(plan)

		execResult, execErr := p.executor.ExecutePhase(ctx, phaseexec.Input{
			Path:      in.Path,
			Container: container,
			TrackSet:  ts,
			Plan:      plan,
			OnError:   phase.EffectiveOnError(in.Policy.Config.OnError),
			DryRun:    in.DryRun,
		})
		if execErr != nil {
			history[phase.Name] = false
			result.PhaseResults = append(result.PhaseResults, model.PhaseResult{
				PhaseName: phase.Name, Outcome: model.PhaseFailed, Error: execErr.Error(),
			})
			result.PhasesFailed++
			result.Success = false
			result.FailedPhase = phase.Name
			result.ErrorMessage = execErr.Error()
			if phase.EffectiveOnError(in.Policy.Config.OnError) == model.OnErrorFail {
				failing = true
			}
			continue
		}

		history[phase.Name] = execResult.FileModified
		result.PhaseResults = append(result.PhaseResults, model.PhaseResult{
			PhaseName: phase.Name, Outcome: model.PhaseRan,
			ChangesMade: execResult.ChangesMade, Duration: execResult.Duration,
		})
		result.PhasesCompleted++
		result.TotalChanges += execResult.ChangesMade

		if execResult.FileModified && !in.DryRun {
			refreshed, err := p.introspect.Scan(ctx, in.Path)
			if err != nil {
				logging.WorkflowWarn("re-introspection failed after phase %q for %s: %v", phase.Name, in.Path, err)
			} else {
				file = refreshed
				container = refreshed.Container
				if newTS, err := p.loadTrackSet(ctx, refreshed.ID); err == nil {
					ts = newTS
				} else {
					logging.WorkflowWarn("failed to reload track set after phase %q for %s: %v", phase.Name, in.Path, err)
				}
			}
		}
	}

	result.TotalDuration = time.Since(start)
	return result, nil
}

func (p *Processor) loadTrackSet(ctx context.Context, fileID int64) (model.TrackSet, error) {
	ts, err := p.tracks.GetByFileID(ctx, fileID)
	if err != nil {
		return model.TrackSet{}, fmt.Errorf("load tracks for file %d: %w", fileID, err)
	}
	return ts, nil
}

func (p *Processor) availableEncoders(ctx context.Context) []string {
	caps, err := p.adapters.Transcoder.Capabilities(ctx)
	if err != nil {
		return nil
	}
	return caps.AudioEncoders
}

func countSynthesized(plan model.Plan) int {
	for _, op := range plan.Operations {
		if op.Kind == model.OpAudioSynthesis {
			return len(op.Synthesis)
		}
	}
	return 0
}
