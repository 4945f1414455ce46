package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func TestDefaultFlagsSelectsFirstSurvivingTrack(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio},
		{TrackIndex: 1, Type: model.TrackAudio},
	}}
	changes := DefaultFlags(model.DefaultFlagsOp{Types: []model.TrackType{model.TrackAudio}}, ts)
	require.Equal(t, []model.DefaultFlagChange{{TrackIndex: 0, SetDefault: true}}, changes)
}

func TestDefaultFlagsRespectsExistingDefault(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio},
		{TrackIndex: 1, Type: model.TrackAudio, Default: true},
	}}
	changes := DefaultFlags(model.DefaultFlagsOp{Types: []model.TrackType{model.TrackAudio}}, ts)
	require.Empty(t, changes)
}

func TestDefaultFlagsClearOthers(t *testing.T) {
	ts := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackAudio, Default: true},
		{TrackIndex: 1, Type: model.TrackAudio, Default: true},
	}}
	changes := DefaultFlags(model.DefaultFlagsOp{Types: []model.TrackType{model.TrackAudio}, ClearOthers: true}, ts)
	require.Equal(t, []model.DefaultFlagChange{{TrackIndex: 1, SetDefault: false}}, changes)
}

func TestDefaultFlagsNoTracksOfTypeIsNoOp(t *testing.T) {
	changes := DefaultFlags(model.DefaultFlagsOp{Types: []model.TrackType{model.TrackSubtitle}}, model.TrackSet{})
	require.Empty(t, changes)
}
