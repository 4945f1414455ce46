package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

func TestGateRunIfPhaseModified(t *testing.T) {
	phase := model.Phase{Name: "strip-commentary", RunIfPhaseModified: "remux"}

	res := Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{})
	require.True(t, res.Skip)
	require.Contains(t, res.Reason, "run_if")

	res = Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{"remux": true})
	require.False(t, res.Skip)
}

func TestGateDependsOn(t *testing.T) {
	phase := model.Phase{Name: "p2", DependsOn: []string{"p1"}}

	res := Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{"p1": false})
	require.True(t, res.Skip)
	require.Contains(t, res.Reason, "depends_on")

	res = Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{"p1": true})
	require.False(t, res.Skip)
}

func TestGateSkipWhen(t *testing.T) {
	phase := model.Phase{
		Name: "p",
		SkipWhen: []model.Condition{
			{Kind: model.CondExists, Filter: &model.TrackFilter{Type: model.TrackSubtitle, Language: []string{"eng"}}},
		},
	}
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackSubtitle, Language: "eng"}}}

	res := Gate(phase, ts, evaluator.Sidecar{}, PhaseHistory{})
	require.True(t, res.Skip)
	require.Contains(t, res.Reason, "skip_when")

	res = Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{})
	require.False(t, res.Skip)
}

func TestGatePrecedenceRunIfBeforeDependsOn(t *testing.T) {
	phase := model.Phase{
		Name:               "p",
		RunIfPhaseModified: "earlier",
		DependsOn:          []string{"also-missing"},
	}
	res := Gate(phase, model.TrackSet{}, evaluator.Sidecar{}, PhaseHistory{})
	require.True(t, res.Skip)
	require.Contains(t, res.Reason, "run_if")
}
