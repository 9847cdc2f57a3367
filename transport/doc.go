// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the duplex message channels that carry
// bridge envelopes between a privileged host and its sandboxed peers.
//
// The bridge is written against [Endpoint]: one side of an ordered,
// message-oriented connection between exactly two parties. Send
// delivers one discrete message, Receive returns the next one, and a
// disconnect surfaces as an error wrapping [ErrClosed]. The host
// accepts endpoints from a [Listener]; peers obtain theirs from a
// [Dialer] or a constructor.
//
// Implementations:
//
//   - [Pipe]: an in-process pair, used by tests and by processes that
//     host both roles.
//   - [StreamEndpoint]: length-framed messages over any net.Conn, with
//     optional per-frame LZ4/zstd compression. [ListenUnix] and
//     [ListenTCP] produce these; Unix endpoints report the peer's
//     pid/uid/gid from SO_PEERCRED so handlers can see who is on the
//     other side of the sandbox boundary.
//   - [WebSocketEndpoint]: one binary WebSocket message per envelope,
//     for peers that can only speak HTTP.
//   - [RedisEndpoint]: a pair of Redis pub/sub topics, for hosts and
//     peers that share a Redis instance rather than a socket.
//
// [Mux] multiplexes several named channels over one endpoint so that
// independent bridges can share a single connection.
package transport
