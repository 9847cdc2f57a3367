// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is a typed, bidirectional message bridge between a
// privileged host process and the sandboxed peers it serves.
//
// A [Bridge] carries one named channel of traffic over any number of
// attached [transport.Endpoint]s. Each side may play either role:
//
//   - Responder: [Bridge.Handle] registers at most one [Handler] per
//     action name. Incoming requests run on their own goroutine; the
//     handler's result or error goes back as a response envelope. An
//     unregistered name gets an unknown_action response without any
//     handler running, and a panic becomes the fixed message
//     "internal error" on the caller's side.
//   - Caller: [Bridge.Call] and [Bridge.Go] (or [Conn.Call] for a
//     specific peer) send a request with a fresh correlation id and
//     settle exactly once: with the result, a [*RemoteError], a
//     cancellation, or [ErrConnectionClosed] when the peer goes away.
//   - Publisher: [Bridge.Publish] encodes an event once and sends it to
//     every attached connection.
//   - Subscriber: [Bridge.On] adds listeners per event name; they run in
//     registration order, and each registration returns its own
//     unsubscribe function.
//
// The message catalog belongs to the application. [Action] and [Event]
// give it compile-time types:
//
//	var Echo = bridge.Action[string, string]{Name: "echo"}
//	bridge.HandleAction(host, Echo, func(ctx context.Context, s string) (string, error) { return s, nil })
//	reply, err := bridge.Invoke(ctx, peer, Echo, "hi")
//
// Envelopes are CBOR by default (see lib/codec); both sides of a
// channel must agree on the codec. Failed responses carry a coarse
// [Code] that callers match with errors.Is, plus an optional
// application reason from handler errors implementing ErrorReason.
package bridge
