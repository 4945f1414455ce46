package tooladapter

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"time"

	"vpo/internal/logging"
	"vpo/internal/model"
)

// runCapture runs name with args under ctx, capturing stdout/stderr
// separately. Grounded on the teacher's shell.executeRunCommand subprocess
// pattern (exec.CommandContext, buffered capture, deadline detection).
func runCapture(ctx context.Context, timeout time.Duration, name string, args ...string) (stdout, stderr string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if runErr != nil {
		timedOut := runCtx.Err() == context.DeadlineExceeded
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return stdout, stderr, &model.ToolError{
			Tool:     name,
			ExitCode: exitCode,
			TimedOut: timedOut,
			Stderr:   stderr,
			Cause:    runErr,
		}
	}
	return stdout, stderr, nil
}

// available reports whether name resolves on PATH, without invoking it.
func available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// runWithProgress runs name with args, streaming stdout lines to
// parseProgressLine and invoking onProgress for each recognized tick.
func runWithProgress(ctx context.Context, timeout time.Duration, onProgress func(ProgressTick), name string, args ...string) (stderr string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if tick, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(tick)
		}
	}

	runErr := cmd.Wait()
	stderr = errBuf.String()
	if runErr != nil {
		timedOut := runCtx.Err() == context.DeadlineExceeded
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		logging.ToolAdapter("%s exited non-zero (code=%d timed_out=%v)", name, exitCode, timedOut)
		return stderr, &model.ToolError{Tool: name, ExitCode: exitCode, TimedOut: timedOut, Stderr: stderr, Cause: runErr}
	}
	return stderr, nil
}
