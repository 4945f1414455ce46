package joblog

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func writeRawLog(t *testing.T, dir, jobID string, numLines int) string {
	t.Helper()
	path, err := LogPath(dir, jobID)
	require.NoError(t, err)
	var sb strings.Builder
	for i := 0; i < numLines; i++ {
		fmt.Fprintf(&sb, "[2026-01-01T00:00:00.000000Z] line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestReadLogTailSmallFileFullRead(t *testing.T) {
	dir := t.TempDir()
	writeRawLog(t, dir, testJobID, 10)

	lines, total, hasMore, err := ReadLogTail(dir, testJobID, 5, 0)
	require.NoError(t, err)
	require.Equal(t, 10, total)
	require.True(t, hasMore)
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "line 0")

	lines, total, hasMore, err = ReadLogTail(dir, testJobID, 5, 5)
	require.NoError(t, err)
	require.Equal(t, 10, total)
	require.False(t, hasMore)
	require.Len(t, lines, 5)
	require.Contains(t, lines[4], "line 9")
}

func TestReadLogTailOffsetBeyondEnd(t *testing.T) {
	dir := t.TempDir()
	writeRawLog(t, dir, testJobID, 3)

	lines, total, hasMore, err := ReadLogTail(dir, testJobID, 5, 100)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.False(t, hasMore)
	require.Empty(t, lines)
}

func TestReadLogTailStreamingForLargeFile(t *testing.T) {
	dir := t.TempDir()
	path, err := LogPath(dir, testJobID)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	line := strings.Repeat("x", 200) + "\n"
	written := 0
	lineCount := 0
	for written < MaxLogSizeBytes+1024 {
		n, werr := f.WriteString(line)
		require.NoError(t, werr)
		written += n
		lineCount++
	}
	require.NoError(t, f.Close())

	lines, total, hasMore, err := ReadLogTail(dir, testJobID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, lineCount, total)
	require.True(t, hasMore)
	require.Len(t, lines, 10)
}

func TestReadLogTailPrefersCompressedLog(t *testing.T) {
	dir := t.TempDir()
	path := writeRawLog(t, dir, testJobID, 4)

	gzPath := path + ".gz"
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	gzFile, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(gzFile)
	_, err = gw.Write(src)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, gzFile.Close())
	require.NoError(t, os.Remove(path))

	lines, total, hasMore, err := ReadLogTail(dir, testJobID, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.True(t, hasMore)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "line 0")
}

func TestLogFileExistsAndCountLogLines(t *testing.T) {
	dir := t.TempDir()
	exists, err := LogFileExists(dir, testJobID)
	require.NoError(t, err)
	require.False(t, exists)

	writeRawLog(t, dir, testJobID, 7)
	exists, err = LogFileExists(dir, testJobID)
	require.NoError(t, err)
	require.True(t, exists)

	n, err := CountLogLines(dir, testJobID)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestReadLogTailRejectsInvalidJobID(t *testing.T) {
	dir := t.TempDir()
	_, _, _, err := ReadLogTail(dir, "not-a-uuid", 10, 0)
	require.Error(t, err)
}
