// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/ipcbridge/lib/compress"
	"github.com/bureau-foundation/ipcbridge/lib/netutil"
)

// frameHeaderLength is the fixed size of a frame header: 1 byte
// compression tag + 4 bytes body length.
const frameHeaderLength = 5

// sizePrefixLength precedes the body of a compressed frame and carries
// the uncompressed length.
const sizePrefixLength = 4

// DefaultMaxFrameSize bounds a single decoded message. 16 MB is far
// more than any envelope a well-behaved peer produces.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// maxFrameLimit is the largest MaxFrameSize honoured: a compressed
// body plus its size prefix must fit the 4-byte length field, and the
// limit must fit an int on 32-bit platforms.
const maxFrameLimit = 1<<31 - 1 - sizePrefixLength

// StreamOptions configures framing on a byte-stream connection.
type StreamOptions struct {
	// Compression is the preferred algorithm for outgoing frames.
	// Frames smaller than compress.MinimumSize, or that do not shrink,
	// are sent uncompressed. Receivers accept any tag regardless of
	// this setting.
	Compression compress.Tag

	// MaxFrameSize caps the size of a message in either direction:
	// Send refuses larger messages with ErrFrameTooLarge, and Receive
	// fails on larger frames. Zero means DefaultMaxFrameSize; values
	// above maxFrameLimit are lowered to it.
	MaxFrameSize int
}

func (o StreamOptions) maxFrameSize() int {
	switch {
	case o.MaxFrameSize <= 0:
		return DefaultMaxFrameSize
	case o.MaxFrameSize > maxFrameLimit:
		return maxFrameLimit
	}
	return o.MaxFrameSize
}

// StreamEndpoint carries discrete messages over a byte stream. Each
// message is one frame:
//
//	[1 byte compression tag] [4 bytes body length, big-endian] [body]
//
// For a compressed frame the body begins with the 4-byte big-endian
// uncompressed length, followed by the compressed bytes.
type StreamEndpoint struct {
	conn    net.Conn
	reader  *bufio.Reader
	options StreamOptions
	info    Info

	writeMu sync.Mutex

	// broken is set when a Receive was interrupted mid-frame. The
	// stream position is unknown after that, so every later Receive
	// fails.
	broken bool

	closeOnce sync.Once
	closeErr  error
}

var _ Endpoint = (*StreamEndpoint)(nil)

// NewStreamEndpoint wraps conn. kind is reported in Info (e.g. "unix",
// "tcp"). The endpoint owns conn and closes it on Close.
func NewStreamEndpoint(conn net.Conn, kind string, options StreamOptions) *StreamEndpoint {
	remote := ""
	if address := conn.RemoteAddr(); address != nil {
		remote = address.String()
	}
	return &StreamEndpoint{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		options: options,
		info:    Info{Kind: kind, RemoteAddress: remote},
	}
}

// Send writes message as one frame. Concurrent Sends are serialized.
func (s *StreamEndpoint) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limit := s.options.maxFrameSize(); len(message) > limit {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrFrameTooLarge, len(message), limit)
	}
	body, tag, err := compress.Auto(message, s.options.Compression)
	if err != nil {
		return fmt.Errorf("compressing frame: %w", err)
	}

	frameLength := frameHeaderLength + len(body)
	if tag != compress.None {
		frameLength += sizePrefixLength
	}
	frame := make([]byte, frameHeaderLength, frameLength)
	frame[0] = byte(tag)
	binary.BigEndian.PutUint32(frame[1:5], uint32(frameLength-frameHeaderLength))
	if tag != compress.None {
		frame = binary.BigEndian.AppendUint32(frame, uint32(len(message)))
	}
	frame = append(frame, body...)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.conn.SetWriteDeadline(time.Now()) })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	} else {
		s.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := s.conn.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if netutil.IsExpectedCloseError(err) {
			return closedError(err)
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive reads the next frame. If ctx is cancelled while a frame is
// partly read, the endpoint becomes unusable and should be closed.
func (s *StreamEndpoint) Receive(ctx context.Context) ([]byte, error) {
	if s.broken {
		return nil, closedError(errors.New("stream interrupted mid-frame"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { s.conn.SetReadDeadline(time.Now()) })
	defer stop()
	s.conn.SetReadDeadline(time.Time{})

	message, started, err := s.readFrame()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			if started {
				s.broken = true
			}
			return nil, ctxErr
		}
		if netutil.IsExpectedCloseError(err) {
			return nil, closedError(err)
		}
		return nil, err
	}
	return message, nil
}

// readFrame returns started=true once any byte of the frame has been
// consumed.
func (s *StreamEndpoint) readFrame() (message []byte, started bool, err error) {
	var header [frameHeaderLength]byte
	n, err := io.ReadFull(s.reader, header[:])
	if err != nil {
		return nil, n > 0, fmt.Errorf("read frame header: %w", err)
	}
	tag := compress.Tag(header[0])
	bodyLength := int(binary.BigEndian.Uint32(header[1:5]))
	limit := s.options.maxFrameSize()

	// A compressed body can never legitimately exceed the
	// uncompressed limit by more than its size prefix.
	if bodyLength > limit+sizePrefixLength {
		return nil, true, fmt.Errorf("frame length %d exceeds maximum %d", bodyLength, limit)
	}
	body := make([]byte, bodyLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, true, fmt.Errorf("read frame body: %w", err)
	}

	if tag == compress.None {
		if bodyLength > limit {
			return nil, true, fmt.Errorf("frame length %d exceeds maximum %d", bodyLength, limit)
		}
		return body, true, nil
	}
	if bodyLength < sizePrefixLength {
		return nil, true, fmt.Errorf("compressed frame too short: %d bytes", bodyLength)
	}
	uncompressedSize := int(binary.BigEndian.Uint32(body[:sizePrefixLength]))
	message, err = compress.Decompress(body[sizePrefixLength:], tag, uncompressedSize, limit)
	if err != nil {
		return nil, true, fmt.Errorf("decoding %s frame: %w", tag, err)
	}
	return message, true, nil
}

// Close closes the underlying connection.
func (s *StreamEndpoint) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *StreamEndpoint) Info() Info { return s.info }

// streamListener adapts a net.Listener to Listener, wrapping each
// accepted connection in a StreamEndpoint.
type streamListener struct {
	listener net.Listener
	kind     string
	options  StreamOptions

	// identify fills in transport-specific Info for an accepted
	// connection. Nil for transports with nothing to add.
	identify func(net.Conn, *Info)

	// cleanup runs after the listener closes (removing a socket file).
	cleanup func()

	closeOnce sync.Once
	closeErr  error
}

func (l *streamListener) Accept(ctx context.Context) (Endpoint, error) {
	// net.Listener.Accept has no context; closing the listener is the
	// only portable way to interrupt it, so a cancelled Accept closes
	// the listener.
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, closedError(err)
		}
		return nil, fmt.Errorf("accept %s: %w", l.kind, err)
	}
	endpoint := NewStreamEndpoint(conn, l.kind, l.options)
	if l.identify != nil {
		l.identify(conn, &endpoint.info)
	}
	return endpoint, nil
}

func (l *streamListener) Address() string { return l.listener.Addr().String() }

func (l *streamListener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.listener.Close()
		if l.cleanup != nil {
			l.cleanup()
		}
	})
	return l.closeErr
}
