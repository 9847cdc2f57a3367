// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the Require helpers use. Taking the
// narrow interface lets helper tests pass a recorder.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	event := testutil.RequireReceive(t, events, 5*time.Second, "waiting for tick")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	expired, stop := hangGuard(timeout)
	defer stop()

	var value T
	select {
	case received, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", describe(msgAndArgs))
			return value
		}
		return received
	case <-expired:
		t.Fatalf("%s: nothing received within %v", describe(msgAndArgs), timeout)
		return value
	}
}

// RequireSend delivers v on ch, failing the test if no receiver takes it
// within timeout. Tests use it to release handlers parked on a gate.
//
//	testutil.RequireSend(t, release, struct{}{}, 5*time.Second, "releasing handler")
func RequireSend[T any](t TB, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	expired, stop := hangGuard(timeout)
	defer stop()

	select {
	case ch <- v:
	case <-expired:
		t.Fatalf("%s: no receiver within %v", describe(msgAndArgs), timeout)
	}
}

// RequireClosed waits for ch to close (a sent value also counts). Use
// it for Done channels.
//
//	testutil.RequireClosed(t, call.Done(), 5*time.Second, "call settled")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	expired, stop := hangGuard(timeout)
	defer stop()

	select {
	case <-ch:
	case <-expired:
		t.Fatalf("%s: channel still open after %v", describe(msgAndArgs), timeout)
	}
}

// hangGuard is the one wall-clock timer in the test suite: it keeps a
// broken test from blocking until the go test deadline.
func hangGuard(timeout time.Duration) (<-chan time.Time, func()) {
	timer := time.NewTimer(timeout)
	return timer.C, func() { timer.Stop() }
}

// describe renders the optional message: nothing, a plain value, or a
// format string with arguments.
func describe(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "wait failed"
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
