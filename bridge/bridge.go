// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// acceptRetryDelay is how long Serve waits after an Accept error that
// did not end the listener.
const acceptRetryDelay = 100 * time.Millisecond

// Bridge is one named channel of request/response and event traffic.
// It holds the handler and listener registries for that channel and
// the set of attached connections.
//
// A privileged host typically registers handlers, Serves a listener,
// and Publishes events to every attached peer. A sandboxed peer
// typically Attaches one endpoint, Calls, and subscribes with On. A
// single Bridge may do both.
type Bridge struct {
	channel         string
	codec           codec.Codec
	logger          *slog.Logger
	clock           clock.Clock
	metrics         *Metrics
	maxInflight     int
	sendTimeout     time.Duration
	onListenerError func(event string, err error)

	ids *idGenerator

	// inflight is a counting semaphore of running handlers. Nil when
	// unbounded.
	inflight chan struct{}

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	listeners listenerRegistry

	connsMu sync.Mutex
	conns   map[string]*Conn
	closed  bool

	// loops tracks connection read goroutines so Close can wait for
	// them. Event goroutines run listeners and are not tracked, so a
	// listener may Close the bridge.
	loops sync.WaitGroup
}

// New creates a bridge for channel ("" means DefaultChannel).
func New(channel string, options ...Option) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}
	b := &Bridge{
		channel:     channel,
		codec:       codec.CBOR,
		logger:      slog.Default(),
		clock:       clock.Real(),
		sendTimeout: DefaultSendTimeout,
		ids:         newIDGenerator(),
		handlers:    make(map[string]Handler),
		listeners:   listenerRegistry{entries: make(map[string][]listenerEntry)},
		conns:       make(map[string]*Conn),
	}
	for _, option := range options {
		option(b)
	}
	b.logger = b.logger.With("channel", channel)
	if b.maxInflight > 0 {
		b.inflight = make(chan struct{}, b.maxInflight)
	}
	if b.onListenerError == nil {
		b.onListenerError = func(event string, err error) {
			b.logger.Error("event listener failed", "event", event, "error", err)
		}
	}
	return b
}

// Channel returns the bridge's channel name.
func (b *Bridge) Channel() string { return b.channel }

// Codec returns the envelope codec.
func (b *Bridge) Codec() codec.Codec { return b.codec }

// Attach starts serving endpoint as a connection of this bridge. The
// bridge owns the endpoint from here on: it is closed when the
// connection ends.
//
// Handlers and listeners belong to the bridge, not to a connection. When
// a connection ends they stay registered, and a later Attach (a peer
// reconnecting) serves them again without registering anything anew.
func (b *Bridge) Attach(endpoint transport.Endpoint) (*Conn, error) {
	conn := newConn(b, endpoint)

	b.connsMu.Lock()
	if b.closed {
		b.connsMu.Unlock()
		conn.cancel()
		endpoint.Close()
		return nil, ErrBridgeClosed
	}
	b.conns[conn.id] = conn
	b.loops.Add(1)
	b.connsMu.Unlock()

	info := conn.Info()
	b.logger.Info("connection attached",
		"connection_id", conn.id,
		"transport", info.Kind,
		"remote", info.RemoteAddress,
		"peer", info.Credentials.String(),
	)

	go func() {
		defer b.loops.Done()
		conn.readLoop()
	}()
	go conn.eventLoop()
	return conn, nil
}

// Serve attaches every endpoint listener accepts until ctx is done or
// the listener closes. It closes the listener on return. Connections
// already attached keep running; Close the bridge to end them.
func (b *Bridge) Serve(ctx context.Context, listener transport.Listener) error {
	defer listener.Close()
	b.logger.Info("bridge serving", "address", listener.Address())

	for {
		endpoint, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			b.logger.Error("accept failed", "error", err)
			select {
			case <-b.clock.After(acceptRetryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if _, err := b.Attach(endpoint); err != nil {
			return err
		}
	}
}

// Conns returns the currently attached connections.
func (b *Bridge) Conns() []*Conn {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, conn := range b.conns {
		conns = append(conns, conn)
	}
	return conns
}

// soleConn returns the only attached connection.
func (b *Bridge) soleConn() (*Conn, error) {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	if b.closed {
		return nil, ErrConnectionClosed
	}
	if len(b.conns) != 1 {
		return nil, fmt.Errorf("%w: %d attached", ErrNoConnection, len(b.conns))
	}
	for _, conn := range b.conns {
		return conn, nil
	}
	panic("unreachable")
}

func (b *Bridge) detach(conn *Conn) {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	if b.conns[conn.id] == conn {
		delete(b.conns, conn.id)
	}
}

// Close ends every connection, rejecting their outstanding calls with
// ErrConnectionClosed, and clears both registries. Handlers still
// running see their context cancelled; their responses are discarded.
// Close does not wait for listeners, which may still be finishing when
// it returns; queued events are discarded. Close may be called from a
// handler or listener, and is idempotent.
func (b *Bridge) Close() error {
	b.connsMu.Lock()
	if b.closed {
		b.connsMu.Unlock()
		return nil
	}
	b.closed = true
	conns := make([]*Conn, 0, len(b.conns))
	for _, conn := range b.conns {
		conns = append(conns, conn)
	}
	b.connsMu.Unlock()

	for _, conn := range conns {
		conn.teardown(nil)
	}
	b.loops.Wait()

	b.handlersMu.Lock()
	b.handlers = make(map[string]Handler)
	b.handlersMu.Unlock()
	b.listeners.clear()

	b.logger.Info("bridge closed", "connections", len(conns))
	return nil
}
