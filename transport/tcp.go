// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ListenTCP listens on a TCP address (e.g. "127.0.0.1:7891"; use ":0"
// for a random port). TCP has no kernel-verified peer identity, so
// accepted endpoints carry only the remote address. Prefer Unix sockets
// for sandbox peers on the same machine.
func ListenTCP(address string, options StreamOptions) (Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &streamListener{listener: listener, kind: "tcp", options: options}, nil
}

// TCPDialer connects to a host's TCP listener.
type TCPDialer struct {
	// Timeout is the maximum time to wait for the connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration

	Options StreamOptions
}

var _ Dialer = (*TCPDialer)(nil)

// DialContext connects to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (Endpoint, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	return NewStreamEndpoint(conn, "tcp", d.Options), nil
}
