// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bureau-foundation/ipcbridge/transport"
)

// Conn is one attached endpoint. It owns the endpoint's read loop, its
// serialized writes, the table of calls awaiting responses from this
// peer, and the handler contexts of requests this peer has in flight.
type Conn struct {
	bridge   *Bridge
	id       string
	endpoint transport.Endpoint
	info     transport.Info
	logger   *slog.Logger

	// ctx is cancelled at teardown; handler contexts derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	pending pendingTable

	// cancelled remembers ids of calls this side cancelled, so a
	// response that arrives afterwards is recognized as late rather
	// than unknown.
	cancelled *lru.Cache[string, struct{}]

	// serving maps request ids from the peer to their handler's cancel
	// function.
	servingMu sync.Mutex
	serving   map[string]context.CancelFunc

	events *eventQueue

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func newConn(b *Bridge, endpoint transport.Endpoint) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	cancelled, err := lru.New[string, struct{}](cancelledHistory)
	if err != nil {
		// lru.New fails only for a non-positive size.
		panic(fmt.Sprintf("bridge: cancelled-call cache: %v", err))
	}
	id := newConnectionID()
	return &Conn{
		bridge:    b,
		id:        id,
		endpoint:  endpoint,
		info:      endpoint.Info(),
		logger:    b.logger.With("connection_id", id),
		ctx:       ctx,
		cancel:    cancel,
		pending:   pendingTable{calls: make(map[string]*Call)},
		cancelled: cancelled,
		serving:   make(map[string]context.CancelFunc),
		events:    newEventQueue(maxQueuedEvents),
		done:      make(chan struct{}),
	}
}

// ID returns the connection's identifier, as used in logs.
func (c *Conn) ID() string { return c.id }

// Info describes the peer on the other end of the connection.
func (c *Conn) Info() transport.Info { return c.info }

// Done is closed when the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, once Done is closed.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Pending returns the number of calls awaiting a response.
func (c *Conn) Pending() int { return c.pending.len() }

// Close ends the connection. Outstanding calls fail with
// ErrConnectionClosed.
func (c *Conn) Close() error {
	c.teardown(nil)
	return nil
}

// send writes one encoded envelope. Writes are serialized so frames
// from concurrent senders never interleave on stream transports.
func (c *Conn) send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.endpoint.Send(ctx, data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return err
	}
	return nil
}

// sendEnvelope stamps the bridge channel on envelope, encodes it, and
// sends it. A zero-valued ctx deadline is replaced by the bridge's send
// timeout.
func (c *Conn) sendEnvelope(ctx context.Context, envelope *Envelope) error {
	envelope.Channel = c.bridge.channel
	data, err := encodeEnvelope(c.bridge.codec, envelope)
	if err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.bridge.sendTimeout)
		defer cancel()
	}
	return c.send(ctx, data)
}

func (c *Conn) readLoop() {
	for {
		data, err := c.endpoint.Receive(c.ctx)
		if err != nil {
			c.teardown(err)
			return
		}
		envelope, err := decodeEnvelope(c.bridge.codec, data)
		if err != nil {
			c.bridge.metrics.malformedEnvelope(c.bridge.channel)
			c.logger.Warn("dropping malformed envelope", "length", len(data), "error", err)
			continue
		}
		if envelope.Channel != c.bridge.channel {
			c.logger.Debug("dropping envelope for another channel", "envelope_channel", envelope.Channel, "kind", envelope.Kind)
			continue
		}

		switch envelope.Kind {
		case KindRequest:
			c.bridge.serveRequest(c, envelope)
		case KindResponse:
			c.settle(envelope)
		case KindEvent:
			if !c.events.push(envelope) {
				c.bridge.metrics.eventDropped(c.bridge.channel)
				c.logger.Warn("event queue full, dropping event", "event", envelope.Name, "queued", maxQueuedEvents)
			}
		case KindCancel:
			c.cancelServing(envelope.ID)
		}
	}
}

// eventLoop runs listeners for received events in arrival order. The
// read loop only queues events, so a listener that calls back into the
// bridge and waits for a response never holds up that response.
func (c *Conn) eventLoop() {
	for {
		for c.ctx.Err() == nil {
			envelope, ok := c.events.pop()
			if !ok {
				break
			}
			c.bridge.dispatchEvent(c, envelope)
		}
		select {
		case <-c.events.ready:
		case <-c.ctx.Done():
			return
		}
	}
}

// eventQueue is a FIFO of received events that never blocks the
// pusher. ready holds a token whenever items may be non-empty.
type eventQueue struct {
	mu    sync.Mutex
	items []*Envelope
	limit int
	ready chan struct{}
}

func newEventQueue(limit int) *eventQueue {
	return &eventQueue{limit: limit, ready: make(chan struct{}, 1)}
}

// push appends envelope, or reports false when the queue is at its
// limit.
func (q *eventQueue) push(envelope *Envelope) bool {
	q.mu.Lock()
	if len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, envelope)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) pop() (*Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	envelope := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return envelope, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// settle completes the pending call matching a response envelope.
func (c *Conn) settle(envelope *Envelope) {
	call, ok := c.pending.remove(envelope.ID)
	if !ok {
		if _, late := c.cancelled.Peek(envelope.ID); late {
			c.cancelled.Remove(envelope.ID)
			c.logger.Debug("dropping late response for cancelled call", "id", envelope.ID, "action", envelope.Name)
		} else {
			c.logger.Warn("dropping response for unknown call", "id", envelope.ID, "action", envelope.Name)
		}
		return
	}
	c.bridge.metrics.pendingAdd(c.bridge.channel, -1)

	if envelope.Failed() {
		code := envelope.Code
		if code == "" {
			code = CodeHandlerFailure
		}
		call.finish(Result{}, &RemoteError{
			Action:  call.Name,
			Code:    code,
			Message: envelope.Error,
			Reason:  envelope.Reason,
		})
		return
	}
	call.finish(Result{raw: envelope.Result, codec: c.bridge.codec}, nil)
}

// trackServing records the cancel function for a request the peer
// has in flight. It refuses an id that is already in flight.
func (c *Conn) trackServing(id string, cancel context.CancelFunc) bool {
	c.servingMu.Lock()
	defer c.servingMu.Unlock()
	if _, exists := c.serving[id]; exists {
		return false
	}
	c.serving[id] = cancel
	return true
}

func (c *Conn) untrackServing(id string) {
	c.servingMu.Lock()
	delete(c.serving, id)
	c.servingMu.Unlock()
}

// cancelServing cancels the handler context of a request the peer has
// given up on.
func (c *Conn) cancelServing(id string) {
	c.servingMu.Lock()
	cancel, ok := c.serving[id]
	c.servingMu.Unlock()
	if !ok {
		c.logger.Debug("cancel for request not in flight", "id", id)
		return
	}
	c.logger.Debug("peer cancelled request", "id", id)
	cancel()
}

// teardown ends the connection once: it cancels handler contexts,
// closes the endpoint, fails every pending call with
// ErrConnectionClosed, and detaches from the bridge. A nil cause means
// a local close.
func (c *Conn) teardown(cause error) {
	c.closeOnce.Do(func() {
		c.cancel()
		c.endpoint.Close()

		if cause == nil || errors.Is(cause, transport.ErrClosed) || errors.Is(cause, context.Canceled) {
			c.err = ErrConnectionClosed
		} else {
			c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
		}

		calls := c.pending.drain()
		c.bridge.metrics.pendingAdd(c.bridge.channel, -float64(len(calls)))
		for _, call := range calls {
			call.finish(Result{}, c.err)
		}

		c.bridge.detach(c)
		close(c.done)

		if cause != nil && !errors.Is(cause, transport.ErrClosed) && !errors.Is(cause, context.Canceled) {
			c.logger.Warn("connection failed", "error", cause, "rejected_calls", len(calls))
		} else {
			c.logger.Info("connection closed", "rejected_calls", len(calls))
		}
	})
}
