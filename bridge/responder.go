// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// panicMessage is the only detail a caller learns about a handler
// panic. The panic value and stack are logged on the handling side.
const panicMessage = "internal error"

// resultTooLargeMessage answers a call whose result exceeds the
// transport's frame limit.
const resultTooLargeMessage = "result too large for transport"

// Handler serves one named action. Its context is cancelled when the
// caller cancels the request or the connection ends. The returned
// value is encoded as the response result; a codec.Raw passes through
// unchanged. A returned error is sent to the caller as its message
// text only.
type Handler func(ctx context.Context, request *Request) (any, error)

// Request is an incoming call as seen by a handler.
type Request struct {
	// ID is the caller's correlation id.
	ID string

	// Name is the action invoked.
	Name string

	// Payload holds the caller's arguments, still encoded.
	Payload []codec.Raw

	codec codec.Codec
}

// Len returns the number of arguments.
func (r *Request) Len() int { return len(r.Payload) }

// Decode unmarshals argument index into target.
func (r *Request) Decode(index int, target any) error {
	if index < 0 || index >= len(r.Payload) {
		return fmt.Errorf("argument %d of %q: request has %d arguments", index, r.Name, len(r.Payload))
	}
	if err := r.codec.Unmarshal(r.Payload[index], target); err != nil {
		return fmt.Errorf("argument %d of %q: %w", index, r.Name, err)
	}
	return nil
}

// Handle registers handler for name. Registering a name that already
// has a handler fails with ErrDuplicateHandler and leaves the existing
// handler in place.
func (b *Bridge) Handle(name string, handler Handler) error {
	if name == "" {
		return errors.New("bridge: handler name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("bridge: nil handler for %q", name)
	}
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, name)
	}
	b.handlers[name] = handler
	return nil
}

// Unhandle removes the handler for name. Removing a name with no
// handler does nothing. Requests already dispatched keep running.
func (b *Bridge) Unhandle(name string) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	delete(b.handlers, name)
}

func (b *Bridge) handler(name string) Handler {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return b.handlers[name]
}

// serveRequest answers one request envelope. Lookup happens on the
// read loop so registrations are observed in arrival order; the
// handler runs on its own goroutine.
func (b *Bridge) serveRequest(conn *Conn, request *Envelope) {
	handler := b.handler(request.Name)
	if handler == nil {
		b.metrics.request(b.channel, unknownActionLabel, outcomeUnknown)
		conn.logger.Debug("request for unknown action", "id", request.ID, "action", request.Name)
		go conn.respond(&Envelope{
			Kind:  KindResponse,
			ID:    request.ID,
			Name:  request.Name,
			Code:  CodeUnknownAction,
			Error: fmt.Sprintf("unknown action %q", request.Name),
		})
		return
	}

	ctx, cancel := context.WithCancel(withConn(conn.ctx, conn))
	if !conn.trackServing(request.ID, cancel) {
		// The first request keeps the id.
		cancel()
		b.metrics.request(b.channel, request.Name, outcomeDuplicate)
		conn.logger.Warn("dropping request whose id is already in flight", "id", request.ID, "action", request.Name)
		return
	}

	go func() {
		defer cancel()
		defer conn.untrackServing(request.ID)

		if b.inflight != nil {
			select {
			case b.inflight <- struct{}{}:
				defer func() { <-b.inflight }()
			case <-ctx.Done():
				b.metrics.request(b.channel, request.Name, outcomeCancelled)
				return
			}
		}

		response := b.invoke(ctx, conn, handler, &Request{
			ID:      request.ID,
			Name:    request.Name,
			Payload: request.Payload,
			codec:   b.codec,
		})
		conn.respond(response)
	}()
}

// invoke runs handler and builds the response envelope, converting a
// panic into a handler failure.
func (b *Bridge) invoke(ctx context.Context, conn *Conn, handler Handler, request *Request) (response *Envelope) {
	response = &Envelope{Kind: KindResponse, ID: request.ID, Name: request.Name}

	defer func() {
		if recovered := recover(); recovered != nil {
			conn.logger.Error("handler panicked",
				"id", request.ID,
				"action", request.Name,
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			b.metrics.request(b.channel, request.Name, outcomePanic)
			response.Result = nil
			response.Code = CodeHandlerFailure
			response.Error = panicMessage
			response.Reason = ""
		}
	}()

	result, err := handler(ctx, request)
	if err != nil {
		response.Code = CodeHandlerFailure
		outcome := outcomeError
		if ctx.Err() != nil && conn.ctx.Err() == nil {
			// The caller cancelled and the handler gave up.
			response.Code = CodeCancelled
			outcome = outcomeCancelled
		}
		response.Error = err.Error()
		response.Reason = errorReason(err)
		b.metrics.request(b.channel, request.Name, outcome)
		conn.logger.Debug("action failed", "id", request.ID, "action", request.Name, "error", err)
		return response
	}

	encoded, err := b.codec.Marshal(result)
	if err != nil {
		conn.logger.Error("encoding handler result failed", "id", request.ID, "action", request.Name, "error", err)
		b.metrics.request(b.channel, request.Name, outcomeError)
		response.Code = CodeHandlerFailure
		response.Error = fmt.Sprintf("encoding result: %v", err)
		return response
	}
	response.Result = encoded
	b.metrics.request(b.channel, request.Name, outcomeOK)
	return response
}

// respond sends a response envelope. A result too large for the
// transport is replaced by a handler failure so the call still
// settles. Other failures cannot be reported to the caller; the
// connection is usually gone.
func (c *Conn) respond(response *Envelope) {
	if err := c.sendEnvelope(context.Background(), response); err != nil {
		if errors.Is(err, transport.ErrFrameTooLarge) && len(response.Result) > 0 {
			c.logger.Warn("response too large for transport", "id", response.ID, "action", response.Name, "error", err)
			c.respond(&Envelope{
				Kind:  KindResponse,
				ID:    response.ID,
				Name:  response.Name,
				Code:  CodeHandlerFailure,
				Error: resultTooLargeMessage,
			})
			return
		}
		if errors.Is(err, ErrConnectionClosed) {
			c.logger.Debug("dropping response for closed connection", "id", response.ID, "action", response.Name)
			return
		}
		c.logger.Warn("sending response failed", "id", response.ID, "action", response.Name, "error", err)
	}
}
