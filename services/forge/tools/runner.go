// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the process execution and filesystem primitives
// used when bundles are applied: a timeout-bounded command runner with
// capped output capture, and a small filesystem abstraction so the apply
// path can be exercised without touching the real disk.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context was passed to a blocking call.
	ErrNilContext = errors.New("context must not be nil")

	// ErrEmptyCommand indicates an empty command line.
	ErrEmptyCommand = errors.New("command must not be empty")

	// ErrCommandTimeout indicates the command exceeded its timeout.
	ErrCommandTimeout = errors.New("command execution timed out")
)

// Defaults for the command runner.
const (
	DefaultCommandTimeout = 5 * time.Minute
	DefaultMaxOutputBytes = 1 * 1024 * 1024
)

// =============================================================================
// COMMAND RUNNER
// =============================================================================

// RunResult captures the outcome of a single command execution.
type RunResult struct {
	Output    string        `json:"output"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated"`
}

// Succeeded reports whether the command exited cleanly.
func (r *RunResult) Succeeded() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// Runner executes lifecycle commands with a timeout and bounded output.
//
// Command lines are split on whitespace and executed directly. No shell is
// involved, so quoting, globs, and pipes are not interpreted.
//
// Thread Safety: Safe for concurrent use. Each execution creates its own
// process.
type Runner struct {
	workingDir string
	timeout    time.Duration
	maxOutput  int
	logger     *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeout overrides the per-command timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxOutput overrides the captured output cap in bytes.
func WithMaxOutput(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// NewRunner creates a command runner rooted at workingDir.
func NewRunner(workingDir string, opts ...RunnerOption) *Runner {
	r := &Runner{
		workingDir: workingDir,
		timeout:    DefaultCommandTimeout,
		maxOutput:  DefaultMaxOutputBytes,
		logger:     slog.Default().With("component", "tools.Runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a single command line in the runner's working directory.
//
// # Description
//
//	Splits the command line on whitespace, executes it with the runner's
//	timeout, and captures combined stdout/stderr up to the output cap.
//	A non-zero exit code is reported in the result, not as an error;
//	errors are reserved for timeouts and failures to start the process.
//
// # Inputs
//
//	ctx - Context for cancellation
//	commandLine - The command with its arguments, e.g. "npm install"
//
// # Outputs
//
//	*RunResult - Execution outcome, non-nil on timeout as well
//	error - Non-nil on nil context, empty command, timeout, or spawn failure
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Run(ctx context.Context, commandLine string) (*RunResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: r.maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: r.maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	r.logger.Debug("Executing command",
		slog.String("command", fields[0]),
		slog.Any("args", fields[1:]),
		slog.Duration("timeout", r.timeout),
	)

	start := time.Now()
	err := cmd.Run()
	result := &RunResult{
		Output:    stdout.String() + stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		r.logger.Warn("Command timed out",
			slog.String("command", fields[0]),
			slog.Duration("timeout", r.timeout),
		)
		return result, ErrCommandTimeout
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, fmt.Errorf("command execution failed: %w", err)
		}
	}

	r.logger.Info("Command completed",
		slog.String("command", fields[0]),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
		slog.Int("output_bytes", len(result.Output)),
	)

	return result, nil
}

// =============================================================================
// LIMITED WRITER
// =============================================================================

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil // Silently discard
	}

	origLen := len(p)
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return origLen, err // Return original length to avoid breaking callers
}
