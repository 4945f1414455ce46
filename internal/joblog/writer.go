// Package joblog implements the Log Lifecycle (spec.md §4.L): a
// per-job, append-only execution log written under
// <data_dir>/logs/<job_id>.log, plus the reader and retention sweep that
// operate on it later.
package joblog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"vpo/internal/logging"
)

// DefaultBufferSize is how many buffered lines accumulate before an
// automatic flush.
const DefaultBufferSize = 100

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateJobID rejects anything that isn't a UUID, defending against
// path traversal through a job id that reaches the filesystem unchecked.
func ValidateJobID(jobID string) error {
	if !uuidPattern.MatchString(strings.ToLower(jobID)) {
		return fmt.Errorf("invalid job ID format: %s", jobID)
	}
	return nil
}

// LogPath resolves the log file path for jobID under logsDir, asserting
// (defense in depth, beyond the UUID check) that the resolved path is
// still contained within logsDir.
func LogPath(logsDir, jobID string) (string, error) {
	if err := ValidateJobID(jobID); err != nil {
		return "", err
	}
	logsDirAbs, err := filepath.Abs(logsDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(logsDirAbs, jobID+".log")
	if !strings.HasPrefix(path, logsDirAbs+string(filepath.Separator)) && path != logsDirAbs {
		return "", fmt.Errorf("invalid job ID - path traversal detected: %s", jobID)
	}
	return path, nil
}

// MetadataField is one ordered key/value pair for WriteHeader — ordered
// rather than a map, since header output must be deterministic.
type MetadataField struct {
	Key   string
	Value string
}

// JobLogWriter is a buffered, thread-safe writer over one job's log file.
type JobLogWriter struct {
	jobID      string
	bufferSize int

	mu     sync.Mutex
	buffer []string
	file   *os.File
	path   string
	closed bool
}

// New validates jobID, ensures logsDir exists, and opens the log file in
// append mode.
func New(logsDir, jobID string, bufferSize int) (*JobLogWriter, error) {
	path, err := LogPath(logsDir, jobID)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	logging.JobLogDebug("opened log file %s", path)
	return &JobLogWriter{jobID: jobID, bufferSize: bufferSize, file: f, path: path}, nil
}

// Path returns the absolute log file path.
func (w *JobLogWriter) Path() string { return w.path }

// RelativePath returns the path stored on the job row, relative to the
// data directory.
func (w *JobLogWriter) RelativePath() string {
	return "logs/" + w.jobID + ".log"
}

// WriteLine appends one timestamped line to the buffer, flushing if the
// buffer has reached bufferSize.
func (w *JobLogWriter) WriteLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	w.buffer = append(w.buffer, fmt.Sprintf("[%s] %s", timestamp, line))
	if len(w.buffer) >= w.bufferSize {
		w.flushLocked()
	}
}

// WriteLines writes each line in order.
func (w *JobLogWriter) WriteLines(lines []string) {
	for _, l := range lines {
		w.WriteLine(l)
	}
}

const ruleWidth = 60
const sectionRuleWidth = 40

// WriteHeader writes the job-start banner.
func (w *JobLogWriter) WriteHeader(jobType, filePath string, metadata ...MetadataField) {
	w.WriteLine(strings.Repeat("=", ruleWidth))
	w.WriteLine(fmt.Sprintf("JOB START: %s", w.jobID))
	w.WriteLine(fmt.Sprintf("Type: %s", jobType))
	w.WriteLine(fmt.Sprintf("File: %s", filePath))
	for _, m := range metadata {
		w.WriteLine(fmt.Sprintf("%s: %s", m.Key, m.Value))
	}
	w.WriteLine(strings.Repeat("=", ruleWidth))
}

// WriteFooter writes the job-end banner. The "JOB END: <status>" line is
// always the last line of the banner.
func (w *JobLogWriter) WriteFooter(success bool, duration *time.Duration) {
	w.WriteLine(strings.Repeat("=", ruleWidth))
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	if duration != nil {
		w.WriteLine(fmt.Sprintf("Duration: %.2fs", duration.Seconds()))
	}
	w.WriteLine(strings.Repeat("=", ruleWidth))
	w.WriteLine(fmt.Sprintf("JOB END: %s", status))
}

// WriteSection writes a titled section divider.
func (w *JobLogWriter) WriteSection(title string) {
	w.WriteLine(strings.Repeat("-", sectionRuleWidth))
	w.WriteLine(title)
	w.WriteLine(strings.Repeat("-", sectionRuleWidth))
}

// WriteSubprocess records one subprocess invocation's exit code and
// captured output.
func (w *JobLogWriter) WriteSubprocess(commandName, stdout, stderr string, returncode int) {
	w.WriteSection(fmt.Sprintf("Command: %s", commandName))
	w.WriteLine(fmt.Sprintf("Exit code: %d", returncode))
	if strings.TrimSpace(stdout) != "" {
		w.WriteLine("STDOUT:")
		for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
			w.WriteLine("  " + line)
		}
	}
	if strings.TrimSpace(stderr) != "" {
		w.WriteLine("STDERR:")
		for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
			w.WriteLine("  " + line)
		}
	}
}

// WriteError records an error, with an optional underlying cause.
func (w *JobLogWriter) WriteError(msg string, cause error) {
	w.WriteLine("ERROR: " + msg)
	if cause != nil {
		w.WriteLine(fmt.Sprintf("Exception: %T: %v", cause, cause))
	}
}

// Flush writes any buffered lines to disk.
func (w *JobLogWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *JobLogWriter) flushLocked() {
	if len(w.buffer) == 0 || w.file == nil {
		return
	}
	content := strings.Join(w.buffer, "\n") + "\n"
	if _, err := w.file.WriteString(content); err != nil {
		logging.JobLogWarn("failed to flush log %s: %v", w.path, err)
		return
	}
	if err := w.file.Sync(); err != nil {
		logging.JobLogWarn("failed to sync log %s: %v", w.path, err)
	}
	w.buffer = w.buffer[:0]
}

// Close flushes any remaining buffered lines and closes the file handle.
// Safe to call more than once.
func (w *JobLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.flushLocked()
	w.closed = true
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
