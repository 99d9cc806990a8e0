package hs

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by hs operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, hs.ErrBinaryNotFound) {
//	    // hs is not installed on this host
//	}
var (
	// ErrBinaryNotFound is returned when the hs binary is not installed
	// or not in PATH.
	ErrBinaryNotFound = errors.New("hs binary not available")

	// ErrCommandFailed is returned when hs exits with a non-zero status.
	ErrCommandFailed = errors.New("hs command failed")

	// ErrTimeout is returned when an hs invocation exceeds its timeout.
	ErrTimeout = errors.New("hs command timed out")

	// ErrEmptyArgument is returned when a path, keyword or tag is empty.
	ErrEmptyArgument = errors.New("empty argument")
)

// CommandError describes a failed hs invocation.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("hs %s: exit %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap lets errors.Is match ErrCommandFailed as well as the underlying cause.
func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}
