// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Result is the value a successful call returned, still encoded.
type Result struct {
	raw   codec.Raw
	codec codec.Codec
}

// Decode unmarshals the result into target. A handler that returned
// nil produces a null result, which leaves target unchanged.
func (r Result) Decode(target any) error {
	if len(r.raw) == 0 || r.codec == nil {
		return nil
	}
	if err := r.codec.Unmarshal(r.raw, target); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

// Raw returns the encoded result.
func (r Result) Raw() codec.Raw { return r.raw }

// Call is an outgoing request awaiting its response. It settles exactly
// once: with the response, a cancellation, a send failure, or the
// connection closing.
type Call struct {
	// ID is the correlation id carried by the request and response.
	ID string

	// Name is the action invoked.
	Name string

	bridge    *Bridge
	conn      *Conn
	createdAt time.Time

	done   chan struct{}
	result Result
	err    error
}

func newCall(b *Bridge, conn *Conn, name string) *Call {
	return &Call{
		ID:        b.ids.next(),
		Name:      name,
		bridge:    b,
		conn:      conn,
		createdAt: b.clock.Now(),
		done:      make(chan struct{}),
	}
}

// failedCall returns a call already settled with err.
func failedCall(b *Bridge, name string, err error) *Call {
	call := newCall(b, nil, name)
	call.finish(Result{}, err)
	return call
}

// Done is closed when the call has settled.
func (call *Call) Done() <-chan struct{} { return call.done }

// Result blocks until the call settles and returns its outcome.
func (call *Call) Result() (Result, error) {
	<-call.done
	return call.result, call.err
}

// Wait blocks until the call settles or ctx is done. If ctx ends first
// the call is cancelled and the error matches both ErrCancelled and
// ctx.Err().
func (call *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case <-call.done:
	case <-ctx.Done():
		call.cancelWith(ctx.Err())
		<-call.done
	}
	return call.result, call.err
}

// Cancel abandons the call. If it has not settled yet it settles now
// with ErrCancelled, and the peer is told so its handler's context is
// cancelled. A response arriving afterwards is dropped.
func (call *Call) Cancel() {
	call.cancelWith(nil)
}

func (call *Call) cancelWith(cause error) {
	conn := call.conn
	if conn == nil {
		return
	}
	if _, ok := conn.pending.remove(call.ID); !ok {
		return
	}
	conn.bridge.metrics.pendingAdd(conn.bridge.channel, -1)
	conn.cancelled.Add(call.ID, struct{}{})

	err := ErrCancelled
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	call.finish(Result{}, err)

	go func() {
		notice := &Envelope{Kind: KindCancel, ID: call.ID, Name: call.Name}
		if err := conn.sendEnvelope(context.Background(), notice); err != nil {
			conn.logger.Debug("sending cancel failed", "id", call.ID, "action", call.Name, "error", err)
		}
	}()
}

// finish settles the call. Callers must own the call, either by having
// removed it from a pending table or by never having added it.
func (call *Call) finish(result Result, err error) {
	outcome := outcomeOK
	var remote *RemoteError
	switch {
	case err == nil:
	case errors.As(err, &remote):
		outcome = outcomeError
	case errors.Is(err, ErrCancelled):
		outcome = outcomeCancelled
	case errors.Is(err, ErrConnectionClosed):
		outcome = outcomeClosed
	default:
		outcome = outcomeFailed
	}
	call.bridge.metrics.call(call.bridge.channel, outcome)

	call.result = result
	call.err = err
	close(call.done)

	if call.conn != nil {
		call.conn.logger.Debug("call settled",
			"id", call.ID,
			"action", call.Name,
			"outcome", outcome,
			"elapsed", call.bridge.clock.Now().Sub(call.createdAt),
		)
	}
}

// start sends a request on the connection and returns its pending
// call. ctx bounds only the send.
func (c *Conn) start(ctx context.Context, name string, args []any) *Call {
	payload, err := codec.Encode(c.bridge.codec, args...)
	if err != nil {
		return failedCall(c.bridge, name, fmt.Errorf("encoding arguments for %q: %w", name, err))
	}
	call := newCall(c.bridge, c, name)
	if !c.pending.add(call) {
		call.conn = nil
		call.finish(Result{}, ErrConnectionClosed)
		return call
	}
	c.bridge.metrics.pendingAdd(c.bridge.channel, 1)

	request := &Envelope{Kind: KindRequest, ID: call.ID, Name: name, Payload: payload}
	if err := c.sendEnvelope(ctx, request); err != nil {
		if _, ok := c.pending.remove(call.ID); ok {
			c.bridge.metrics.pendingAdd(c.bridge.channel, -1)
			call.finish(Result{}, fmt.Errorf("sending %q request: %w", name, err))
		}
	}
	return call
}

// Go sends a request to this connection's peer and returns without
// waiting for the response.
func (c *Conn) Go(name string, args ...any) *Call {
	return c.start(context.Background(), name, args)
}

// Call invokes name on this connection's peer and waits for the
// response. Cancelling ctx cancels the call.
func (c *Conn) Call(ctx context.Context, name string, args ...any) (Result, error) {
	return c.start(ctx, name, args).Wait(ctx)
}

// CallTimeout is Call with a deadline measured on the bridge's clock.
// On expiry the call is cancelled and the error matches both
// ErrTimeout and ErrCancelled.
func (c *Conn) CallTimeout(ctx context.Context, timeout time.Duration, name string, args ...any) (Result, error) {
	return c.bridge.waitTimeout(ctx, c.start(ctx, name, args), timeout)
}

func (b *Bridge) waitTimeout(ctx context.Context, call *Call, timeout time.Duration) (Result, error) {
	select {
	case <-call.done:
	case <-b.clock.After(timeout):
		call.cancelWith(fmt.Errorf("%w after %s", ErrTimeout, timeout))
		<-call.done
	case <-ctx.Done():
		call.cancelWith(ctx.Err())
		<-call.done
	}
	return call.result, call.err
}

// Go sends a request on the bridge's only connection. With zero or
// several connections attached the returned call has already failed
// with ErrNoConnection.
func (b *Bridge) Go(name string, args ...any) *Call {
	conn, err := b.soleConn()
	if err != nil {
		return failedCall(b, name, err)
	}
	return conn.Go(name, args...)
}

// Call invokes name on the bridge's only connection; see Go.
func (b *Bridge) Call(ctx context.Context, name string, args ...any) (Result, error) {
	conn, err := b.soleConn()
	if err != nil {
		return Result{}, err
	}
	return conn.Call(ctx, name, args...)
}

// CallTimeout is Call with a deadline on the bridge's clock.
func (b *Bridge) CallTimeout(ctx context.Context, timeout time.Duration, name string, args ...any) (Result, error) {
	conn, err := b.soleConn()
	if err != nil {
		return Result{}, err
	}
	return conn.CallTimeout(ctx, timeout, name, args...)
}
