package joblog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func chtime(t *testing.T, path string, when time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestSweepCompressesOldPlainLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	old := writeRawLog(t, dir, testJobID, 5)
	chtime(t, old, now.Add(-10*24*time.Hour))

	result, err := Sweep(dir, DefaultRetentionConfig(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Compressed)
	require.Equal(t, 0, result.Deleted)

	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(old + ".gz")
	require.NoError(t, err)
}

func TestSweepDeletesVeryOldLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	old := writeRawLog(t, dir, testJobID, 5)
	chtime(t, old, now.Add(-100*24*time.Hour))

	result, err := Sweep(dir, DefaultRetentionConfig(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)

	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
}

func TestSweepDeletesVeryOldCompressedLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	path, err := LogPath(dir, testJobID)
	require.NoError(t, err)
	gzPath := path + ".gz"
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte("old compressed content\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())
	chtime(t, gzPath, now.Add(-95*24*time.Hour))

	result, err := Sweep(dir, DefaultRetentionConfig(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)
	_, err = os.Stat(gzPath)
	require.True(t, os.IsNotExist(err))
}

func TestSweepLeavesRecentLogsUntouched(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	recent := writeRawLog(t, dir, testJobID, 3)
	chtime(t, recent, now.Add(-1*time.Hour))

	result, err := Sweep(dir, DefaultRetentionConfig(), now)
	require.NoError(t, err)
	require.Equal(t, 0, result.Compressed)
	require.Equal(t, 0, result.Deleted)
	_, err = os.Stat(recent)
	require.NoError(t, err)
}

func TestSweepRemovesOrphanedTempFiles(t *testing.T) {
	dataDir := t.TempDir()
	logsDir := filepath.Join(dataDir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o755))
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	orphan := filepath.Join(dataDir, "movie.mkv.vpo_temp_abc123")
	require.NoError(t, os.WriteFile(orphan, []byte("scratch"), 0o644))
	chtime(t, orphan, now.Add(-100*24*time.Hour))

	fresh := filepath.Join(dataDir, "movie2.mkv.vpo_temp_def456")
	require.NoError(t, os.WriteFile(fresh, []byte("scratch"), 0o644))
	chtime(t, fresh, now.Add(-1*time.Hour))

	result, err := Sweep(logsDir, DefaultRetentionConfig(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.OrphansSwept)

	_, err = os.Stat(orphan)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestSweepOnMissingDirectoryIsNoOp(t *testing.T) {
	result, err := Sweep(filepath.Join(t.TempDir(), "missing"), DefaultRetentionConfig(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, result)
}
