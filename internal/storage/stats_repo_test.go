package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func TestStatsPersistIsAtomicAndRoundTrips(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	s := model.ProcessingStats{
		StatsID:          uuid.NewString(),
		JobID:            uuid.NewString(),
		FileID:           1,
		BeforeSize:       1000,
		AfterSize:        800,
		BeforeHash:       "abc",
		AfterHash:        "def",
		BeforeCounts:     model.TrackTypeCounts{Video: 1, Audio: 3, Subtitle: 5},
		AfterCounts:      model.TrackTypeCounts{Video: 1, Audio: 1, Subtitle: 1},
		Duration:         2500 * time.Millisecond,
		PhasesCompleted:  3,
		PhasesTotal:      3,
		TotalChanges:     7,
		VideoSourceCodec: "h264",
		VideoTargetCodec: "hevc",
		Encoder:          model.EncoderHardware,
		Success:          true,
		Actions: []model.ActionResult{
			{PhaseName: "cleanup", OperationName: "audio_filter", Success: true, ChangesMade: 2, Duration: 10 * time.Millisecond},
		},
		Metrics: []model.PerformanceMetric{
			{PhaseName: "cleanup", Duration: 15 * time.Millisecond, BytesIn: 1000, BytesOut: 800},
		},
	}

	require.NoError(t, e.Stats().Persist(ctx, s))

	got, err := e.Stats().GetByStatsID(ctx, s.StatsID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, s.JobID, got.JobID)
	require.Equal(t, s.BeforeCounts, got.BeforeCounts)
	require.Equal(t, s.AfterCounts, got.AfterCounts)
	require.Equal(t, s.Duration, got.Duration)
	require.Equal(t, model.EncoderHardware, got.Encoder)
	require.True(t, got.Success)
	require.Len(t, got.Actions, 1)
	require.Equal(t, "audio_filter", got.Actions[0].OperationName)
	require.Len(t, got.Metrics, 1)
	require.Equal(t, int64(800), got.Metrics[0].BytesOut)

	require.Equal(t, model.TrackTypeCounts{Video: 0, Audio: 2, Subtitle: 4}, got.TracksRemoved())
}

func TestStatsGetByStatsIDMissingReturnsNil(t *testing.T) {
	e := openTestEngine(t)
	got, err := e.Stats().GetByStatsID(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}
