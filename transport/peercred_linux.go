// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads SO_PEERCRED from the socket: the pid, uid, and
// gid of the process that connected, as recorded by the kernel at
// connect time.
func peerCredentials(conn *net.UnixConn) (*Credentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("accessing socket descriptor: %w", err)
	}
	var ucred *unix.Ucred
	var sockoptErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("controlling socket descriptor: %w", err)
	}
	if sockoptErr != nil {
		return nil, fmt.Errorf("reading SO_PEERCRED: %w", sockoptErr)
	}
	return &Credentials{PID: ucred.Pid, UID: ucred.Uid, GID: ucred.Gid}, nil
}
