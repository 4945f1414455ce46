package model

import "time"

// JobType distinguishes what kind of work a Job performs.
type JobType string

const (
	JobScan      JobType = "scan"
	JobApply     JobType = "apply"
	JobTranscode JobType = "transcode"
	JobMove      JobType = "move"
	JobProcess   JobType = "process"
)

// JobStatus is a Job's position in its lifecycle. Transitions are monotonic
// along one of: queued -> running -> {completed|failed}; queued -> cancelled;
// {failed|cancelled} -> queued (requeue).
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether status is one the queue will not advance
// automatically (completed, failed, cancelled).
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is one unit of work tracked by the job queue. FilePath is denormalised
// so the job survives deletion of the referenced File row.
type Job struct {
	ID              string // UUIDv4
	FileID          *int64
	FilePath        string
	Type            JobType
	Status          JobStatus
	Priority        int // lower value = higher priority
	PolicyName      string
	PolicyPayload   []byte // opaque serialized policy document
	ProgressPercent int
	ProgressPayload []byte

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	WorkerPID       int
	WorkerHeartbeat *time.Time

	ErrorMessage   string
	OutputPath     string
	SummaryPayload []byte
	LogPath        string
	SummaryJSON    []byte
}

// QueueStats is a snapshot of job counts per status.
type QueueStats struct {
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Total     int
}
