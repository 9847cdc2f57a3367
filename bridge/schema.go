// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
)

// Action names a request/response pair with its argument and result
// types. Host applications declare their catalog as package variables
// shared by both sides:
//
//	var Echo = bridge.Action[EchoRequest, EchoResponse]{Name: "echo"}
//
// The request travels as the single payload argument.
type Action[Req, Resp any] struct {
	Name string
}

// Event names a published event with its payload type.
//
//	var Tick = bridge.Event[TickPayload]{Name: "tick"}
type Event[T any] struct {
	Name string
}

// Caller is implemented by *Bridge (its only connection) and *Conn (a
// specific peer).
type Caller interface {
	Call(ctx context.Context, name string, args ...any) (Result, error)
}

var (
	_ Caller = (*Bridge)(nil)
	_ Caller = (*Conn)(nil)
)

// HandleAction registers a typed handler for action.
func HandleAction[Req, Resp any](b *Bridge, action Action[Req, Resp], handler func(ctx context.Context, request Req) (Resp, error)) error {
	return b.Handle(action.Name, func(ctx context.Context, request *Request) (any, error) {
		var decoded Req
		if request.Len() > 0 {
			if err := request.Decode(0, &decoded); err != nil {
				return nil, err
			}
		}
		return handler(ctx, decoded)
	})
}

// Invoke calls action and decodes its result.
func Invoke[Req, Resp any](ctx context.Context, caller Caller, action Action[Req, Resp], request Req) (Resp, error) {
	var response Resp
	result, err := caller.Call(ctx, action.Name, request)
	if err != nil {
		return response, err
	}
	if err := result.Decode(&response); err != nil {
		return response, fmt.Errorf("action %q: %w", action.Name, err)
	}
	return response, nil
}

// PublishEvent publishes a typed event to every connection.
func PublishEvent[T any](b *Bridge, event Event[T], payload T) error {
	return b.Publish(event.Name, payload)
}

// Subscribe adds a typed listener for event. A payload that does not
// decode as T is reported to the bridge's listener error handler and
// the listener is not called.
func Subscribe[T any](b *Bridge, event Event[T], listener func(T)) (unsubscribe func()) {
	return b.On(event.Name, func(message Message) {
		var payload T
		if message.Len() > 0 {
			if err := message.Decode(0, &payload); err != nil {
				b.onListenerError(event.Name, err)
				return
			}
		}
		listener(payload)
	})
}
