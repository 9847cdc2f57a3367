// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/ipcbridge/bridge"
)

// ErrorCategory classifies command errors so scripts can branch on the
// exit status without parsing error text.
type ErrorCategory string

const (
	// CategoryValidation indicates bad input: unknown command, missing
	// argument, unparseable value. Exit status 2.
	CategoryValidation ErrorCategory = "validation"

	// CategoryRemote indicates the other side of the bridge rejected the
	// request: unknown action or handler failure. Exit status 3.
	CategoryRemote ErrorCategory = "remote"

	// CategoryTransient indicates a connection or timeout failure that
	// may succeed on retry. Exit status 4.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates anything else. Exit status 1.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized error returned by commands. It wraps the
// underlying error so errors.Is and errors.As still see the full chain.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Categorize returns the category of err. Bridge errors are mapped by
// kind when the command did not categorize them itself.
func Categorize(err error) ErrorCategory {
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return toolError.Category
	}
	var remote *bridge.RemoteError
	if errors.As(err, &remote) {
		return CategoryRemote
	}
	switch {
	case errors.Is(err, bridge.ErrTimeout),
		errors.Is(err, bridge.ErrConnectionClosed),
		errors.Is(err, bridge.ErrNoConnection),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	}
	return CategoryInternal
}

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	switch Categorize(err) {
	case CategoryValidation:
		return 2
	case CategoryRemote:
		return 3
	case CategoryTransient:
		return 4
	default:
		return 1
	}
}
