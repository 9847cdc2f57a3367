// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// pipeBuffer is the number of messages each direction of a Pipe can
// hold before Send blocks.
const pipeBuffer = 64

// Pipe returns two connected in-process endpoints. Messages sent on one
// are received on the other, in order. Closing either end closes both,
// as with net.Pipe.
func Pipe() (Endpoint, Endpoint) {
	shared := &pipeState{closed: make(chan struct{})}
	aToB := make(chan []byte, pipeBuffer)
	bToA := make(chan []byte, pipeBuffer)
	a := &pipeEndpoint{state: shared, in: bToA, out: aToB, info: Info{Kind: "pipe", RemoteAddress: "pipe:b"}}
	b := &pipeEndpoint{state: shared, in: aToB, out: bToA, info: Info{Kind: "pipe", RemoteAddress: "pipe:a"}}
	return a, b
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeEndpoint struct {
	state *pipeState
	in    <-chan []byte
	out   chan<- []byte
	info  Info
}

func (p *pipeEndpoint) Send(ctx context.Context, message []byte) error {
	select {
	case <-p.state.closed:
		return ErrClosed
	default:
	}
	copied := append([]byte(nil), message...)
	select {
	case p.out <- copied:
		return nil
	case <-p.state.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEndpoint) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message := <-p.in:
		return message, nil
	case <-p.state.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEndpoint) Close() error {
	p.state.once.Do(func() { close(p.state.closed) })
	return nil
}

func (p *pipeEndpoint) Info() Info { return p.info }

// PipeListener is an in-process Listener. Dial creates a Pipe, queues
// one end for Accept, and returns the other. Tests use it to run a
// host bridge's Serve loop without sockets.
type PipeListener struct {
	pending chan Endpoint
	once    sync.Once
	closed  chan struct{}
}

// Compile-time interface checks.
var (
	_ Listener = (*PipeListener)(nil)
	_ Dialer   = (*PipeListener)(nil)
)

// NewPipeListener creates an in-process listener.
func NewPipeListener() *PipeListener {
	return &PipeListener{pending: make(chan Endpoint), closed: make(chan struct{})}
}

// Dial connects to the listener. It blocks until Accept takes the
// host side, the listener closes, or ctx is done.
func (l *PipeListener) Dial(ctx context.Context) (Endpoint, error) {
	host, peer := Pipe()
	select {
	case l.pending <- host:
		return peer, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DialContext implements Dialer. The address is ignored.
func (l *PipeListener) DialContext(ctx context.Context, _ string) (Endpoint, error) {
	return l.Dial(ctx)
}

func (l *PipeListener) Accept(ctx context.Context) (Endpoint, error) {
	select {
	case endpoint := <-l.pending:
		return endpoint, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PipeListener) Address() string { return "pipe" }

func (l *PipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
