// Package planner reduces a Policy's declarative phases to concrete Plans
// against a file's current track set, per spec.md §4.F. It performs no I/O
// and raises no tool errors; it only decides what the Phase Executor should
// do.
package planner

import (
	"fmt"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

// PhaseHistory tells the gating functions which earlier phases in this
// file's run actually modified the file, keyed by phase name.
type PhaseHistory map[string]bool

// GateResult is the outcome of phase-level gating.
type GateResult struct {
	Skip   bool
	Reason string
}

// Gate evaluates run_if -> depends_on -> skip_when, in that order, per
// spec.md §4.F.
func Gate(phase model.Phase, ts model.TrackSet, sc evaluator.Sidecar, history PhaseHistory) GateResult {
	if phase.RunIfPhaseModified != "" && !history[phase.RunIfPhaseModified] {
		return GateResult{Skip: true, Reason: fmt.Sprintf("run_if: phase %q did not modify the file", phase.RunIfPhaseModified)}
	}

	for _, dep := range phase.DependsOn {
		if !history[dep] {
			return GateResult{Skip: true, Reason: fmt.Sprintf("depends_on: phase %q did not modify the file", dep)}
		}
	}

	for _, cond := range phase.SkipWhen {
		ok, reason := evaluator.Evaluate(cond, ts, sc)
		if ok {
			return GateResult{Skip: true, Reason: "skip_when: " + reason}
		}
	}

	return GateResult{Skip: false}
}
