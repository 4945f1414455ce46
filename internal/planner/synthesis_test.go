package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func notCommentary(model.Track) bool { return false }

func TestResolveSynthesisHappyPath(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 1, Type: model.TrackAudio, Language: "eng", Channels: 6, Title: "English 5.1"},
	}}
	def := model.AudioSynthesisDef{
		Name:           "eng-stereo",
		TargetCodec:    "aac",
		TargetChannels: 2,
		Preferences:    []model.PreferenceCriterion{{Kind: model.PrefLanguage, Language: []string{"eng"}}},
		Title:          "inherit",
		Language:       "inherit",
	}

	resolved, skipped := ResolveSynthesis(def, SynthesisInput{
		TrackSet:          ts,
		AvailableEncoders: []string{"libfdk_aac"},
		CommentaryOf:      notCommentary,
	})
	require.Nil(t, skipped)
	require.NotNil(t, resolved)
	require.Equal(t, 1, resolved.SourceTrackIdx)
	require.Equal(t, "English 5.1", resolved.Title)
	require.Equal(t, "eng", resolved.Language)
	require.NotNil(t, resolved.BitrateKbps)
	require.Equal(t, 192, *resolved.BitrateKbps)
}

func TestResolveSynthesisSkipsWhenEncoderMissing(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackAudio, Channels: 6}}}
	def := model.AudioSynthesisDef{Name: "x", TargetCodec: "opus", TargetChannels: 2}

	resolved, skipped := ResolveSynthesis(def, SynthesisInput{TrackSet: ts, AvailableEncoders: []string{"aac"}, CommentaryOf: notCommentary})
	require.Nil(t, resolved)
	require.NotNil(t, skipped)
	require.Equal(t, model.SkipSynthEncoderMissing, skipped.Reason)
}

func TestResolveSynthesisSkipsOnUpmix(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackAudio, Channels: 2}}}
	def := model.AudioSynthesisDef{Name: "x", TargetCodec: "aac", TargetChannels: 6}

	resolved, skipped := ResolveSynthesis(def, SynthesisInput{TrackSet: ts, AvailableEncoders: []string{"aac"}, CommentaryOf: notCommentary})
	require.Nil(t, resolved)
	require.NotNil(t, skipped)
	require.Equal(t, model.SkipSynthWouldUpmix, skipped.Reason)
}

func TestResolveSynthesisRejectsUnsafeName(t *testing.T) {
	def := model.AudioSynthesisDef{Name: "../escape", TargetCodec: "aac", TargetChannels: 2}
	resolved, skipped := ResolveSynthesis(def, SynthesisInput{
		TrackSet:          model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackAudio, Channels: 2}}},
		AvailableEncoders: []string{"aac"},
		CommentaryOf:      notCommentary,
	})
	require.Nil(t, resolved)
	require.NotNil(t, skipped)
}

func TestSelectSynthesisSourceSkipsEliminatingCriterion(t *testing.T) {
	candidates := []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "eng", Channels: 2},
		{TrackIndex: 1, Type: model.TrackAudio, Language: "eng", Channels: 6},
	}
	prefs := []model.PreferenceCriterion{
		{Kind: model.PrefLanguage, Language: []string{"fre"}}, // eliminates everyone, skipped
		{Kind: model.PrefChannels, Channels: model.ChannelsPreference{Max: true}},
	}
	source, ok := selectSynthesisSource(prefs, candidates, notCommentary)
	require.True(t, ok)
	require.Equal(t, 1, source.TrackIndex)
}

func TestResolveTargetPositionEnd(t *testing.T) {
	ts := model.TrackSet{Tracks: make([]model.Track, 3)}
	require.Equal(t, 5, resolveTargetPosition("end", model.Track{}, ts, 1))
}

func TestResolveTargetPositionAfterSource(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio},
		{TrackIndex: 1, Type: model.TrackAudio},
	}}
	require.Equal(t, 2, resolveTargetPosition("after_source", model.Track{TrackIndex: 1}, ts, 0))
}

func TestResolveBitrateExplicitOverridesDefaultTable(t *testing.T) {
	explicit := 500
	def := model.AudioSynthesisDef{BitrateKbps: &explicit, TargetCodec: "aac", TargetChannels: 2}
	got := resolveBitrate(def, model.Track{})
	require.Equal(t, &explicit, got)
}

func TestResolveBitrateFlacIsLossless(t *testing.T) {
	def := model.AudioSynthesisDef{TargetCodec: "flac", TargetChannels: 2}
	require.Nil(t, resolveBitrate(def, model.Track{}))
}
