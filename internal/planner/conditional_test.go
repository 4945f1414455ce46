package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

func TestApplyRunsThenBranchWhenMatched(t *testing.T) {
	lang := model.TrackSubtitle
	rules := []model.ConditionalRule{{
		Name: "forced-if-single-sub",
		When: model.Condition{Kind: model.CondCount, Count: &model.CountExpr{
			Filter: model.TrackFilter{Type: model.TrackSubtitle}, Op: model.CmpEq, N: 1,
		}},
		ThenActions: []model.ConditionalAction{{Kind: model.ActionSetForced, TrackType: &lang, BoolValue: true}},
		ElseActions: []model.ConditionalAction{{Kind: model.ActionWarn, Template: "multiple subtitles in {filename}"}},
	}}
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackSubtitle}}}

	results, flags, _, subtitleActions := Apply(rules, ts, evaluator.Sidecar{}, "movie.mkv", "/lib/movie.mkv")
	require.Len(t, results, 1)
	require.True(t, results[0].Matched)
	require.Empty(t, flags)
	require.Len(t, subtitleActions, 1)
	require.Equal(t, model.ActionSetForced, subtitleActions[0].Kind)
}

func TestApplyRunsElseBranchWhenNotMatched(t *testing.T) {
	rules := []model.ConditionalRule{{
		Name: "warn-if-many-subs",
		When: model.Condition{Kind: model.CondCount, Count: &model.CountExpr{
			Filter: model.TrackFilter{Type: model.TrackSubtitle}, Op: model.CmpEq, N: 1,
		}},
		ElseActions: []model.ConditionalAction{{Kind: model.ActionWarn, Template: "multiple subtitles in {filename} ({rule_name})"}},
	}}
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackSubtitle}, {TrackIndex: 1, Type: model.TrackSubtitle},
	}}

	results, _, _, _ := Apply(rules, ts, evaluator.Sidecar{}, "movie.mkv", "/lib/movie.mkv")
	require.False(t, results[0].Matched)
	require.Equal(t, []string{"multiple subtitles in movie.mkv (warn-if-many-subs)"}, results[0].AppliedWarn)
}

func TestApplySkipActionSetsFlag(t *testing.T) {
	rules := []model.ConditionalRule{{
		Name:        "skip-transcode-if-small",
		When:        model.Condition{Kind: model.CondExists, Filter: &model.TrackFilter{Type: model.TrackVideo}},
		ThenActions: []model.ConditionalAction{{Kind: model.ActionSkip, SkipTarget: model.SkipVideoTranscode}},
	}}
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackVideo}}}

	_, flags, _, _ := Apply(rules, ts, evaluator.Sidecar{}, "f.mkv", "/f.mkv")
	require.True(t, flags.VideoTranscode)
	require.False(t, flags.AudioTranscode)
}

func TestApplyAudioVsSubtitleActionPartitioning(t *testing.T) {
	audioType := model.TrackAudio
	subType := model.TrackSubtitle
	rules := []model.ConditionalRule{{
		Name: "r",
		When: model.Condition{Kind: model.CondExists, Filter: &model.TrackFilter{Type: model.TrackAudio}},
		ThenActions: []model.ConditionalAction{
			{Kind: model.ActionSetDefault, TrackType: &audioType, BoolValue: true},
			{Kind: model.ActionSetDefault, TrackType: &subType, BoolValue: true},
		},
	}}
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackAudio}}}

	_, _, audioActions, subtitleActions := Apply(rules, ts, evaluator.Sidecar{}, "f.mkv", "/f.mkv")
	require.Len(t, audioActions, 1)
	require.Len(t, subtitleActions, 1)
}
