package hs

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured output of one hs invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes one hs command line. Args exclude the binary name.
//
// Implementations must capture stdout and stderr and report a non-zero exit
// as a *CommandError. Tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs the hs binary as a child process, without a shell.
type ExecRunner struct {
	// Binary is the hs executable name or path (default "hs").
	Binary string

	// Timeout bounds each invocation. Zero means no timeout.
	Timeout time.Duration

	// Dir is the working directory for the child process.
	Dir string
}

// Run executes `hs args...` and captures its output.
//
// Example:
//
//	res, err := (&ExecRunner{}).Run(ctx, "keyword", "add", "sghs:hero", "/proj/sh010")
func (r *ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	if _, err := exec.LookPath(binary); err != nil {
		return Result{ExitCode: -1}, ErrBinaryNotFound
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(err),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	return res, &CommandError{
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
}

// exitCode returns the exit code from an error, or -1 if not an exit error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
