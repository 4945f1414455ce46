package model

import "fmt"

// InsufficientTracksError is raised by the Planner when the minimum audio
// track count cannot be satisfied and no fallback applies.
type InsufficientTracksError struct {
	Required        int
	Available       int
	PolicyLanguages []string
	FileLanguages   []string
}

func (e *InsufficientTracksError) Error() string {
	return fmt.Sprintf(
		"insufficient audio tracks: required=%d available=%d policy_languages=%v file_languages=%v",
		e.Required, e.Available, e.PolicyLanguages, e.FileLanguages,
	)
}

// PhaseExecutionError wraps any operation-level error with phase context.
// It propagates to the Workflow Processor, which applies on-error at batch
// scope.
type PhaseExecutionError struct {
	Phase     string
	Operation string // empty if the failure isn't attributable to one operation
	Message   string
	Cause     error
}

func (e *PhaseExecutionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("phase %q operation %q failed: %s", e.Phase, e.Operation, e.Message)
	}
	return fmt.Sprintf("phase %q failed: %s", e.Phase, e.Message)
}

func (e *PhaseExecutionError) Unwrap() error { return e.Cause }

// ToolError describes a failure from an external tool invocation: a
// non-zero exit, the tool being absent, or a timeout.
type ToolError struct {
	Tool     string
	Purpose  string
	ExitCode int
	TimedOut bool
	Stderr   string
	Cause    error
}

func (e *ToolError) Error() string {
	if e.Cause != nil && e.Tool == "" {
		return fmt.Sprintf("tool error: %v", e.Cause)
	}
	if e.TimedOut {
		return fmt.Sprintf("tool %q (%s) timed out", e.Tool, e.Purpose)
	}
	return fmt.Sprintf("tool %q (%s) exited %d: %s", e.Tool, e.Purpose, e.ExitCode, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// ToolUnavailableError is surfaced when adapter routing needs a tool that
// isn't installed.
type ToolUnavailableError struct {
	Tool    string
	Purpose string
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("required tool %q (%s) is not available", e.Tool, e.Purpose)
}
