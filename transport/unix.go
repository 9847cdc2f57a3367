// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
)

// ListenUnix listens on a Unix socket at path. Any existing socket file
// at path is removed first, and the file is removed again when the
// listener closes. The socket is created mode 0600: only the host's
// user (and root) may connect unless the caller widens it.
//
// Accepted endpoints carry the connecting process's credentials in
// Info where the platform supports it.
func ListenUnix(path string, options StreamOptions) (Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		os.Remove(path)
		return nil, fmt.Errorf("restricting socket permissions on %s: %w", path, err)
	}
	return &streamListener{
		listener: listener,
		kind:     "unix",
		options:  options,
		identify: identifyUnixPeer,
		cleanup:  func() { os.Remove(path) },
	}, nil
}

// UnixDialer connects to a host's Unix socket.
type UnixDialer struct {
	Options StreamOptions
}

var _ Dialer = (*UnixDialer)(nil)

// DialContext connects to the socket at path.
func (d *UnixDialer) DialContext(ctx context.Context, path string) (Endpoint, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	endpoint := NewStreamEndpoint(conn, "unix", d.Options)
	endpoint.info.RemoteAddress = path
	return endpoint, nil
}

func identifyUnixPeer(conn net.Conn, info *Info) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return
	}
	if info.RemoteAddress == "" || info.RemoteAddress == "@" || info.RemoteAddress == "<nil>" {
		info.RemoteAddress = "unix"
	}
	credentials, err := peerCredentials(unixConn)
	if err != nil {
		return
	}
	info.Credentials = credentials
}
