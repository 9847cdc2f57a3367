// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// DefaultChannel is the channel name used when New is given "".
const DefaultChannel = "IPC-bridge"

// DefaultSendTimeout bounds a single transport write that has no
// caller context: responses, event fan-out, and cancel notices.
const DefaultSendTimeout = 10 * time.Second

// cancelledHistory is how many cancelled call ids each connection
// remembers, to tell late responses from unknown ones.
const cancelledHistory = 1024

// maxQueuedEvents caps the received events a connection holds ahead
// of listener dispatch. Events beyond it are dropped and counted.
const maxQueuedEvents = 65536

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Default: slog.Default(). Per-message
// events are logged at Debug, connection lifecycle at Info, and
// failures at Warn or Error.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithCodec sets the envelope codec. Both sides of a channel must use
// the same one. Default: codec.CBOR.
func WithCodec(c codec.Codec) Option {
	return func(b *Bridge) { b.codec = c }
}

// WithClock sets the time source for call timestamps and CallTimeout.
// Tests pass clock.Fake. Default: clock.Real().
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithMetrics records bridge activity in m.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithMaxInflight bounds the number of handlers running at once across
// all connections. Requests beyond the limit wait for a slot. Zero
// means unbounded.
func WithMaxInflight(n int) Option {
	return func(b *Bridge) { b.maxInflight = n }
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(timeout time.Duration) Option {
	return func(b *Bridge) { b.sendTimeout = timeout }
}

// WithListenerErrorHandler receives errors from event listeners: a
// panic (converted to an error) or, for Subscribe, a payload that does
// not decode. Default: log at Error.
func WithListenerErrorHandler(handler func(event string, err error)) Option {
	return func(b *Bridge) { b.onListenerError = handler }
}
