// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// maxChannelNameLength is the largest channel name a Mux frame can
// carry (its length is one byte).
const maxChannelNameLength = 255

// muxInboxSize is the number of messages buffered per channel before
// the Mux read loop blocks on that channel's consumer.
const muxInboxSize = 64

// Mux multiplexes named channels over one Endpoint. Each message is
// prefixed with its channel name:
//
//	[1 byte name length] [name] [message]
//
// Both sides must open the same channel names. Messages for a channel
// that is not open locally are dropped. A consumer that stops
// receiving stalls delivery to every channel once its inbox fills.
type Mux struct {
	endpoint Endpoint
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]*muxChannel

	done    chan struct{}
	doneErr error
}

// NewMux starts demultiplexing endpoint. The Mux owns endpoint and
// closes it on Close.
func NewMux(endpoint Endpoint, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		endpoint: endpoint,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		channels: make(map[string]*muxChannel),
		done:     make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Channel opens the named channel. Each name may be open at most once
// at a time.
func (m *Mux) Channel(name string) (Endpoint, error) {
	if name == "" || len(name) > maxChannelNameLength {
		return nil, fmt.Errorf("mux channel name must be 1-%d bytes, got %d", maxChannelNameLength, len(name))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}
	if _, exists := m.channels[name]; exists {
		return nil, fmt.Errorf("mux channel %q is already open", name)
	}
	channel := &muxChannel{
		mux:    m,
		name:   name,
		inbox:  make(chan []byte, muxInboxSize),
		closed: make(chan struct{}),
	}
	m.channels[name] = channel
	return channel, nil
}

// Done is closed when the underlying endpoint fails or the Mux is
// closed.
func (m *Mux) Done() <-chan struct{} { return m.done }

// Err returns why the Mux stopped, once Done is closed.
func (m *Mux) Err() error {
	<-m.done
	return m.doneErr
}

// Close closes the underlying endpoint and every open channel.
func (m *Mux) Close() error {
	m.cancel()
	err := m.endpoint.Close()
	<-m.done
	return err
}

func (m *Mux) readLoop() {
	var loopErr error
	defer func() {
		m.mu.Lock()
		m.doneErr = loopErr
		for name, channel := range m.channels {
			channel.closeOnce.Do(func() { close(channel.closed) })
			delete(m.channels, name)
		}
		close(m.done)
		m.mu.Unlock()
	}()

	for {
		message, err := m.endpoint.Receive(m.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				loopErr = ErrClosed
			} else {
				loopErr = err
			}
			return
		}
		if len(message) < 1 || len(message) < 1+int(message[0]) || message[0] == 0 {
			m.logger.Warn("dropping malformed mux frame", "length", len(message))
			continue
		}
		nameLength := int(message[0])
		name := string(message[1 : 1+nameLength])

		m.mu.Lock()
		channel := m.channels[name]
		m.mu.Unlock()
		if channel == nil {
			m.logger.Debug("dropping message for unopened mux channel", "channel", name)
			continue
		}
		select {
		case channel.inbox <- message[1+nameLength:]:
		case <-channel.closed:
		case <-m.ctx.Done():
			loopErr = ErrClosed
			return
		}
	}
}

type muxChannel struct {
	mux   *Mux
	name  string
	inbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *muxChannel) Send(ctx context.Context, message []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	frame := make([]byte, 0, 1+len(c.name)+len(message))
	frame = append(frame, byte(len(c.name)))
	frame = append(frame, c.name...)
	frame = append(frame, message...)
	return c.mux.endpoint.Send(ctx, frame)
}

func (c *muxChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case message := <-c.inbox:
		return message, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the channel from the Mux. The underlying endpoint and
// other channels stay open.
func (c *muxChannel) Close() error {
	c.mux.mu.Lock()
	if c.mux.channels[c.name] == c {
		delete(c.mux.channels, c.name)
	}
	c.mux.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *muxChannel) Info() Info {
	info := c.mux.endpoint.Info()
	info.Kind = "mux/" + info.Kind
	info.RemoteAddress = info.RemoteAddress + "#" + c.name
	return info
}
