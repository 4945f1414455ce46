package stats

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
	"vpo/internal/storage"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	e, err := storage.Open(filepath.Join(t.TempDir(), "library.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCollectorCapturesAndPersistsRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("original bytes"), 0o644))

	before := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackVideo, Codec: "h264"},
		{TrackIndex: 1, Type: model.TrackAudio, Codec: "aac", Language: "eng"},
		{TrackIndex: 2, Type: model.TrackAudio, Codec: "aac", Language: "jpn"},
	}}

	c := NewCollector("job-1", 42)
	require.NoError(t, c.CaptureBeforeState(path, before))
	require.Equal(t, "h264", c.Stats().VideoSourceCodec)
	require.Equal(t, 2, c.Stats().BeforeCounts.Audio)

	c.AddAction(model.ActionResult{PhaseName: "strip", OperationName: "audio_filter", Success: true, ChangesMade: 1, Duration: 5 * time.Millisecond})
	c.AddPhaseMetrics(model.PerformanceMetric{PhaseName: "strip", Duration: 8 * time.Millisecond, BytesIn: 100, BytesOut: 90})
	c.SetVideoTranscodeInfo("hevc", model.EncoderHardware)
	c.SetAudioTranscodeCounts(1, 1)

	require.NoError(t, os.WriteFile(path, []byte("shrunk"), 0o644))
	after := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackVideo, Codec: "hevc"},
		{TrackIndex: 1, Type: model.TrackAudio, Codec: "aac", Language: "eng"},
	}}
	require.NoError(t, c.CaptureAfterState(path, &after))

	c.Finalize(model.FileProcessingResult{
		Success: true, TotalDuration: 20 * time.Millisecond, TotalChanges: 1,
		PhasesCompleted: 1, PhaseResults: []model.PhaseResult{{PhaseName: "strip", Outcome: model.PhaseRan}},
	})

	require.NoError(t, c.Persist(ctx, e.Stats()))

	got, err := e.Stats().GetByStatsID(ctx, c.Stats().StatsID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "job-1", got.JobID)
	require.Equal(t, int64(42), got.FileID)
	require.Equal(t, "hevc", got.VideoTargetCodec)
	require.Equal(t, model.EncoderHardware, got.Encoder)
	require.Equal(t, 1, got.AudioTracksTranscoded)
	require.Equal(t, 1, got.AudioTracksPreserved)
	require.Len(t, got.Actions, 1)
	require.Len(t, got.Metrics, 1)
	require.Equal(t, 1, got.TracksRemoved().Audio)
	require.True(t, got.Success)
}

func TestCaptureAfterStateCopiesBeforeCountsWhenReintrospectionUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	before := model.TrackSet{Tracks: []model.Track{
		{TrackIndex: 0, Type: model.TrackVideo, Codec: "h264"},
		{TrackIndex: 1, Type: model.TrackAudio, Codec: "aac"},
	}}
	c := NewCollector("job-2", 7)
	require.NoError(t, c.CaptureBeforeState(path, before))
	require.NoError(t, c.CaptureAfterState(path, nil))

	require.Equal(t, c.Stats().BeforeCounts, c.Stats().AfterCounts)
	require.Equal(t, model.TrackTypeCounts{}, c.Stats().TracksRemoved())
}
