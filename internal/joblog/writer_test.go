package joblog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testJobID = "550e8400-e29b-41d4-a716-446655440000"

func TestValidateJobIDRejectsNonUUID(t *testing.T) {
	require.NoError(t, ValidateJobID(testJobID))
	require.Error(t, ValidateJobID("not-a-uuid"))
	require.Error(t, ValidateJobID("../../etc/passwd"))
	require.Error(t, ValidateJobID(""))
}

func TestLogPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	path, err := LogPath(dir, testJobID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, dir))
	require.True(t, strings.HasSuffix(path, testJobID+".log"))

	_, err = LogPath(dir, "../../../etc/passwd")
	require.Error(t, err)
}

func TestWriterFlushesAtBufferSize(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testJobID, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	w.WriteLine("one")
	w.WriteLine("two")

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.Empty(t, data, "buffer should not flush before reaching bufferSize")

	w.WriteLine("three")
	data, err = os.ReadFile(w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "one")
	require.Contains(t, lines[2], "three")
}

func TestWriterHeaderFooterSectionAndClose(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testJobID, DefaultBufferSize)
	require.NoError(t, err)

	w.WriteHeader("transcode", "/media/movie.mkv", MetadataField{Key: "policy", Value: "default"})
	w.WriteSection("Probing")
	w.WriteLine("found 3 tracks")
	w.WriteSubprocess("ffprobe", "stream info", "", 0)
	w.WriteError("probe degraded", nil)
	duration := "2m"
	_ = duration
	w.WriteFooter(true, nil)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "JOB START: "+testJobID)
	require.Contains(t, content, "Type: transcode")
	require.Contains(t, content, "policy: default")
	require.Contains(t, content, "Probing")
	require.Contains(t, content, "found 3 tracks")
	require.Contains(t, content, "Command: ffprobe")
	require.Contains(t, content, "Exit code: 0")
	require.Contains(t, content, "STDOUT:")
	require.Contains(t, content, "ERROR: probe degraded")
	require.Contains(t, content, "JOB END: SUCCESS")

	// Close is idempotent.
	require.NoError(t, w.Close())
}

func TestWriterRelativePath(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testJobID, DefaultBufferSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.Equal(t, "logs/"+testJobID+".log", w.RelativePath())
}

func TestWriterOpensInAppendMode(t *testing.T) {
	dir := t.TempDir()
	w1, err := New(dir, testJobID, 1)
	require.NoError(t, err)
	w1.WriteLine("first session")
	require.NoError(t, w1.Close())

	w2, err := New(dir, testJobID, 1)
	require.NoError(t, err)
	w2.WriteLine("second session")
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(filepath.Join(dir, testJobID+".log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "first session")
	require.Contains(t, lines[1], "second session")
}

func TestWriteAfterCloseIsNoOp(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, testJobID, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w.WriteLine("should not appear")
	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.Empty(t, data)
}
