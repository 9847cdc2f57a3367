// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is wrapped by every error that reports a closed or
// disconnected endpoint. Callers test for it with errors.Is.
var ErrClosed = errors.New("transport: endpoint closed")

// ErrFrameTooLarge is returned by Send for a message above the
// endpoint's frame size limit. Nothing is written and the endpoint
// stays usable.
var ErrFrameTooLarge = errors.New("transport: message exceeds frame size limit")

// Endpoint is one side of an ordered, message-oriented duplex
// connection between exactly two parties.
//
// Send is safe for concurrent use. Receive must be called from a single
// goroutine at a time.
type Endpoint interface {
	// Send transmits one message. Messages are delivered in order. The
	// endpoint does not retain message after Send returns.
	Send(ctx context.Context, message []byte) error

	// Receive blocks until the next message arrives, the endpoint is
	// closed (an error wrapping ErrClosed), or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close shuts the endpoint down. Safe to call more than once.
	Close() error

	// Info describes the connection for logging and authorization.
	Info() Info
}

// Listener accepts endpoints from connecting peers.
type Listener interface {
	// Accept blocks until a peer connects, the listener is closed, or
	// ctx is done.
	Accept(ctx context.Context) (Endpoint, error)

	// Address is the address peers dial, in the listener's own format
	// (a socket path, host:port, or URL).
	Address() string

	// Close stops accepting. Endpoints already accepted stay open.
	Close() error
}

// Dialer opens endpoints to a listening host.
type Dialer interface {
	DialContext(ctx context.Context, address string) (Endpoint, error)
}

// Info describes an endpoint's connection.
type Info struct {
	// Kind names the transport: "pipe", "unix", "tcp", "websocket",
	// or "redis". Channels of a Mux report "mux/" plus the kind of the
	// endpoint underneath.
	Kind string

	// RemoteAddress is the peer's address when the transport has one.
	RemoteAddress string

	// Credentials identifies the peer process when the transport can
	// establish it (Unix sockets on Linux). Nil otherwise.
	Credentials *Credentials
}

// Credentials is the kernel-reported identity of a peer process.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

func (c *Credentials) String() string {
	if c == nil {
		return "unknown"
	}
	return fmt.Sprintf("pid=%d uid=%d gid=%d", c.PID, c.UID, c.GID)
}

// closedError wraps cause so that it matches ErrClosed while keeping
// the original error text.
func closedError(cause error) error {
	if cause == nil || errors.Is(cause, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, cause)
}
