// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateHandler is returned by Handle when the name already
	// has a handler. The existing handler stays registered.
	ErrDuplicateHandler = errors.New("bridge: handler already registered")

	// ErrUnknownAction matches a RemoteError whose request named an
	// action with no handler on the other side.
	ErrUnknownAction = errors.New("bridge: unknown action")

	// ErrHandlerFailure matches a RemoteError whose handler returned an
	// error or panicked.
	ErrHandlerFailure = errors.New("bridge: handler failed")

	// ErrCancelled is returned for a call cancelled before its response
	// arrived, and matches a RemoteError with CodeCancelled.
	ErrCancelled = errors.New("bridge: call cancelled")

	// ErrTimeout is returned by CallTimeout when the deadline passes.
	// The call is cancelled, so the error also matches ErrCancelled.
	ErrTimeout = errors.New("bridge: call timed out")

	// ErrConnectionClosed is returned for calls outstanding when their
	// connection disconnects or the bridge closes, and for sends on a
	// closed connection.
	ErrConnectionClosed = errors.New("bridge: connection closed")

	// ErrMalformedEnvelope marks an incoming message that could not be
	// decoded or is missing required fields. Such messages are dropped.
	ErrMalformedEnvelope = errors.New("bridge: malformed envelope")

	// ErrNoConnection is returned by Bridge.Call and Bridge.Go unless
	// exactly one connection is attached. Use Conn.Call to address a
	// specific peer.
	ErrNoConnection = errors.New("bridge: no single connection to call")

	// ErrBridgeClosed is returned by Attach and Serve after Close.
	ErrBridgeClosed = errors.New("bridge: closed")
)

// Code classifies a failed response.
type Code string

const (
	// CodeUnknownAction: no handler is registered for the name.
	CodeUnknownAction Code = "unknown_action"

	// CodeHandlerFailure: the handler returned an error or panicked.
	CodeHandlerFailure Code = "handler_failure"

	// CodeCancelled: the caller cancelled the request and the handler
	// returned an error after observing it.
	CodeCancelled Code = "cancelled"
)

// RemoteError is returned by a call whose response carried an error.
// Match its class with errors.Is against ErrUnknownAction,
// ErrHandlerFailure, or ErrCancelled; read Reason for the
// application-defined code, if the handler supplied one.
type RemoteError struct {
	// Action is the name the call invoked.
	Action string

	Code Code

	// Message is the handler's error text. For panics it is the fixed
	// string "internal error".
	Message string

	// Reason is an application error code from a handler error that
	// implements ErrorReason. Empty otherwise.
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bridge: action %q failed (%s/%s): %s", e.Action, e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("bridge: action %q failed (%s): %s", e.Action, e.Code, e.Message)
}

// Is reports whether the error belongs to target's class. Codes this
// version does not recognize count as handler failures.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnknownAction:
		return e.Code == CodeUnknownAction
	case ErrCancelled:
		return e.Code == CodeCancelled
	case ErrHandlerFailure:
		return e.Code != CodeUnknownAction && e.Code != CodeCancelled
	}
	return false
}

// reasoner is implemented by handler errors that carry an
// application-level error code for the caller.
type reasoner interface {
	ErrorReason() string
}

// errorReason returns the first ErrorReason in err's chain.
func errorReason(err error) string {
	var r reasoner
	if errors.As(err, &r) {
		return r.ErrorReason()
	}
	return ""
}

// ReasonError attaches an application error code to an error. A
// handler returning one delivers Reason to the caller's RemoteError.
type ReasonError struct {
	Reason string
	Err    error
}

// WithReason wraps err with an application error code.
func WithReason(reason string, err error) error {
	return &ReasonError{Reason: reason, Err: err}
}

func (e *ReasonError) Error() string       { return e.Err.Error() }
func (e *ReasonError) Unwrap() error       { return e.Err }
func (e *ReasonError) ErrorReason() string { return e.Reason }
