// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"

	"github.com/bureau-foundation/ipcbridge/transport"
)

type connContextKey struct{}

func withConn(ctx context.Context, conn *Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, conn)
}

// ConnFromContext returns the connection a handler's request arrived
// on. Handlers use it to call back into that specific peer.
func ConnFromContext(ctx context.Context) (*Conn, bool) {
	conn, ok := ctx.Value(connContextKey{}).(*Conn)
	return conn, ok
}

// PeerFromContext returns the transport description of the peer that
// sent a handler's request, including its process credentials when the
// transport can establish them.
func PeerFromContext(ctx context.Context) (transport.Info, bool) {
	conn, ok := ConnFromContext(ctx)
	if !ok {
		return transport.Info{}, false
	}
	return conn.Info(), true
}
