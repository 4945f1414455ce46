package joblog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MaxLogSizeBytes is the threshold above which ReadLogTail switches from
// reading the whole file into memory to a streaming two-pass read.
const MaxLogSizeBytes = 10 * 1024 * 1024

// DefaultLogLines is the default page size for ReadLogTail.
const DefaultLogLines = 500

// ReadLogTail returns up to `lines` lines starting at `offset`, the total
// line count, and whether more lines exist beyond what was returned. It
// transparently prefers a compressed log (<job_id>.log.gz) produced by
// retention over the live (<job_id>.log), matching whichever one exists.
func ReadLogTail(logsDir, jobID string, lines, offset int) ([]string, int, bool, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, 0, false, err
	}
	if lines <= 0 {
		lines = DefaultLogLines
	}
	if offset < 0 {
		offset = 0
	}

	plainPath, err := LogPath(logsDir, jobID)
	if err != nil {
		return nil, 0, false, err
	}
	gzPath := plainPath + ".gz"

	if info, err := os.Stat(gzPath); err == nil && !info.IsDir() {
		return readCompressedLog(gzPath, lines, offset)
	}

	info, err := os.Stat(plainPath)
	if err != nil {
		return nil, 0, false, fmt.Errorf("stat log file %s: %w", plainPath, err)
	}
	if info.Size() > MaxLogSizeBytes {
		return readLogTailStreaming(plainPath, lines, offset)
	}
	return readLogTailFull(plainPath, lines, offset)
}

// LogFileExists reports whether either the live or compressed log exists
// for jobID.
func LogFileExists(logsDir, jobID string) (bool, error) {
	plainPath, err := LogPath(logsDir, jobID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(plainPath); err == nil {
		return true, nil
	}
	if _, err := os.Stat(plainPath + ".gz"); err == nil {
		return true, nil
	}
	return false, nil
}

// CountLogLines returns the total line count of a job's log, whichever
// form (plain or compressed) is present.
func CountLogLines(logsDir, jobID string) (int, error) {
	if err := ValidateJobID(jobID); err != nil {
		return 0, err
	}
	plainPath, err := LogPath(logsDir, jobID)
	if err != nil {
		return 0, err
	}
	if info, err := os.Stat(plainPath + ".gz"); err == nil && !info.IsDir() {
		f, err := os.Open(plainPath + ".gz")
		if err != nil {
			return 0, err
		}
		defer f.Close()
		gr, err := gzip.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer gr.Close()
		return countLines(gr)
	}
	f, err := os.Open(plainPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return countLines(f)
}

func countLines(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

func readLogTailFull(path string, lines, offset int) ([]string, int, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("read log file %s: %w", path, err)
	}
	all := splitLines(string(data))
	return sliceTail(all, lines, offset)
}

func readLogTailStreaming(path string, lines, offset int) ([]string, int, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open log file %s: %w", path, err)
	}
	defer f.Close()

	total, err := countLines(f)
	if err != nil {
		return nil, 0, false, fmt.Errorf("count lines in %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, false, err
	}

	chunk, err := islice(f, offset, lines)
	if err != nil {
		return nil, 0, false, err
	}
	hasMore := offset+len(chunk) < total
	return chunk, total, hasMore, nil
}

func readCompressedLog(gzPath string, lines, offset int) ([]string, int, bool, error) {
	f, err := os.Open(gzPath)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open compressed log %s: %w", gzPath, err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open gzip reader for %s: %w", gzPath, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, 0, false, fmt.Errorf("decompress log %s: %w", gzPath, err)
	}
	all := splitLines(string(data))
	return sliceTail(all, lines, offset)
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func sliceTail(all []string, lines, offset int) ([]string, int, bool, error) {
	total := len(all)
	if offset >= total {
		return []string{}, total, false, nil
	}
	end := offset + lines
	if end > total {
		end = total
	}
	return all[offset:end], total, end < total, nil
}

// islice mirrors Python's itertools.islice(f, offset, offset+lines) over
// a line-oriented reader, without loading the whole file into memory.
func islice(r io.Reader, offset, lines int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	idx := 0
	result := make([]string, 0, lines)
	for scanner.Scan() {
		if idx >= offset && idx < offset+lines {
			result = append(result, scanner.Text())
		}
		idx++
		if idx >= offset+lines {
			break
		}
	}
	return result, scanner.Err()
}
