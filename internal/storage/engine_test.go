package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "library.db")
	e, err := Open(dbPath, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenAppliesMigrations(t *testing.T) {
	e := openTestEngine(t)
	require.True(t, e.HealthCheck(context.Background()))

	var version int
	err := e.writer.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
}

func TestFilesUpsertRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	f := &model.File{
		Path:         "/media/movie.mkv",
		Filename:     "movie.mkv",
		Directory:    "/media",
		Extension:    "mkv",
		SizeBytes:    1024,
		Container:    "matroska",
		PartialHash:  "abc123",
		ModTime:      time.Now(),
		LastScanTime: time.Now(),
		ScanStatus:   model.ScanStatusOK,
	}
	id, err := e.Files().Upsert(ctx, f)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := e.Files().GetByPath(ctx, f.Path)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, f.Container, got.Container)

	// Re-upsert the same path updates rather than duplicates.
	f.Container = "mp4"
	id2, err := e.Files().Upsert(ctx, f)
	require.NoError(t, err)
	require.Equal(t, id, id2)

	got2, err := e.Files().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "mp4", got2.Container)
}

func TestTracksReplaceForFile(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	fileID, err := e.Files().Upsert(ctx, &model.File{
		Path: "/media/show.mkv", Filename: "show.mkv", Directory: "/media",
		Extension: "mkv", Container: "matroska", ModTime: time.Now(), LastScanTime: time.Now(),
		ScanStatus: model.ScanStatusOK,
	})
	require.NoError(t, err)

	tracks := []model.Track{
		{TrackIndex: 0, Type: model.TrackVideo, Codec: "h264", Width: 1920, Height: 1080},
		{TrackIndex: 1, Type: model.TrackAudio, Codec: "aac", Language: "eng", Channels: 2, Default: true},
		{TrackIndex: 2, Type: model.TrackSubtitle, Codec: "subrip", Language: "spa", Forced: true},
	}
	require.NoError(t, e.Tracks().ReplaceForFile(ctx, fileID, tracks))

	ts, err := e.Tracks().GetByFileID(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, ts.Tracks, 3)
	require.Len(t, ts.ByType(model.TrackAudio), 1)
	require.True(t, ts.Tracks[1].Default)

	// Replacing again fully supersedes the old set.
	require.NoError(t, e.Tracks().ReplaceForFile(ctx, fileID, tracks[:1]))
	ts2, err := e.Tracks().GetByFileID(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, ts2.Tracks, 1)
}

func TestRetryReraisesNonLockErrors(t *testing.T) {
	called := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond, JitterFrac: 0.1}, func() error {
		called++
		return context.Canceled
	})
	require.Error(t, err)
	require.Equal(t, 1, called, "non-lock errors must not be retried")
}
