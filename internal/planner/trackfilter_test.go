package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func noSpecial(model.Track) string { return "" }

func TestFilterAudioKeepsMatchingLanguages(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "eng"},
		{TrackIndex: 1, Type: model.TrackAudio, Language: "jpn"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, Minimum: 1, Fallback: model.FallbackKeepAll}

	out, err := FilterAudio(op, ts, noSpecial)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].Keep)
	require.False(t, out[1].Keep)
}

func TestFilterAudioPreservesSpecialClassification(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "eng"},
		{TrackIndex: 1, Type: model.TrackAudio, Language: "jpn", Title: "Director Commentary"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, PreserveSpecial: []string{"commentary"}, Minimum: 1, Fallback: model.FallbackKeepAll}
	special := func(t model.Track) string {
		if t.Title == "Director Commentary" {
			return "commentary"
		}
		return ""
	}

	out, err := FilterAudio(op, ts, special)
	require.NoError(t, err)
	require.True(t, out[0].Keep)
	require.True(t, out[1].Keep)
	require.Contains(t, out[1].Reason, "commentary")
}

func TestFilterAudioFallbackKeepFirst(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "jpn"},
		{TrackIndex: 1, Type: model.TrackAudio, Language: "kor"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, Minimum: 1, Fallback: model.FallbackKeepFirst}

	out, err := FilterAudio(op, ts, noSpecial)
	require.NoError(t, err)
	require.True(t, out[0].Keep)
	require.False(t, out[1].Keep)
}

func TestFilterAudioFallbackContentLanguage(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "jpn"},
		{TrackIndex: 1, Type: model.TrackAudio, Language: "jpn"},
		{TrackIndex: 2, Type: model.TrackAudio, Language: "kor"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, Minimum: 2, Fallback: model.FallbackContentLanguage}

	out, err := FilterAudio(op, ts, noSpecial)
	require.NoError(t, err)
	require.True(t, out[0].Keep)
	require.True(t, out[1].Keep)
	require.False(t, out[2].Keep)
}

func TestFilterAudioFallbackErrorRaisesInsufficientTracks(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "jpn"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, Minimum: 1, Fallback: model.FallbackError}

	_, err := FilterAudio(op, ts, noSpecial)
	require.Error(t, err)
	var insufficient *model.InsufficientTracksError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 1, insufficient.Required)
	require.Equal(t, 0, insufficient.Available)
}

// Open Question #1: minimum=0 with fallback=error always succeeds.
func TestFilterAudioMinimumZeroWithErrorFallbackNeverRaises(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Language: "jpn"},
	}}
	op := model.TrackFilterOp{KeepLanguages: []string{"eng"}, Minimum: 0, Fallback: model.FallbackError}

	out, err := FilterAudio(op, ts, noSpecial)
	require.NoError(t, err)
	require.False(t, out[0].Keep)
}

func TestFilterSubtitleRemoveAll(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackSubtitle, Language: "eng"}}}
	out := FilterSubtitle(model.SubtitleFilterOp{RemoveAll: true}, ts, false)
	require.False(t, out[0].Keep)
}

func TestFilterSubtitlePreserveForcedUnlessBeingCleared(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackSubtitle, Language: "jpn", Forced: true}}}
	op := model.SubtitleFilterOp{PreserveForced: true, KeepLanguages: []string{"eng"}}

	out := FilterSubtitle(op, ts, false)
	require.True(t, out[0].Keep)
	require.Contains(t, out[0].Reason, "preserve_forced")

	out = FilterSubtitle(op, ts, true)
	require.False(t, out[0].Keep)
}

func TestFilterAttachmentRemoveAllWarnsOnFonts(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAttachment, Codec: "ttf"},
		{TrackIndex: 1, Type: model.TrackSubtitle, Codec: "ass"},
	}}
	out, warning := FilterAttachment(model.AttachmentFilterOp{RemoveAll: true}, ts)
	require.False(t, out[0].Keep)
	require.NotEmpty(t, warning)
}

func TestFilterAttachmentKeepsWhenNotRemoving(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{{TrackIndex: 0, Type: model.TrackAttachment, Codec: "ttf"}}}
	out, warning := FilterAttachment(model.AttachmentFilterOp{}, ts)
	require.True(t, out[0].Keep)
	require.Empty(t, warning)
}
