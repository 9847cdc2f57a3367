// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/ipcbridge/lib/netutil"
)

// WebSocketListener accepts peers over WebSocket. It is an http.Handler:
// mount it on a server's mux at the path peers dial, and call Accept to
// receive the upgraded endpoints.
type WebSocketListener struct {
	upgrader     websocket.Upgrader
	address      string
	maxFrameSize int
	logger       *slog.Logger

	accepted  chan *WebSocketEndpoint
	closeOnce sync.Once
	closed    chan struct{}
}

var (
	_ Listener     = (*WebSocketListener)(nil)
	_ http.Handler = (*WebSocketListener)(nil)
)

// NewWebSocketListener creates a listener whose Address reports
// address (the URL peers dial). maxFrameSize caps incoming messages;
// zero means DefaultMaxFrameSize.
func NewWebSocketListener(address string, maxFrameSize int, logger *slog.Logger) *WebSocketListener {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		address:      address,
		maxFrameSize: maxFrameSize,
		logger:       logger,
		accepted:     make(chan *WebSocketEndpoint),
		closed:       make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and hands the connection to Accept.
// Requests arriving after Close are refused with 503.
func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.closed:
		http.Error(w, "bridge listener closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	endpoint := newWebSocketEndpoint(conn, l.maxFrameSize)
	endpoint.info.RemoteAddress = r.RemoteAddr

	select {
	case l.accepted <- endpoint:
	case <-l.closed:
		endpoint.Close()
	case <-r.Context().Done():
		endpoint.Close()
	}
}

func (l *WebSocketListener) Accept(ctx context.Context) (Endpoint, error) {
	select {
	case endpoint := <-l.accepted:
		return endpoint, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WebSocketListener) Address() string { return l.address }

// Close stops handing out new connections. The HTTP server that mounts
// the listener is owned by the caller and is not shut down.
func (l *WebSocketListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// DialWebSocket connects to a WebSocketListener at url (ws:// or
// wss://).
func DialWebSocket(ctx context.Context, url string, maxFrameSize int) (*WebSocketEndpoint, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			if body := netutil.ErrorBody(response.Body); body != "" {
				return nil, fmt.Errorf("dialing %s: %w (HTTP %d: %s)", url, err, response.StatusCode, body)
			}
			return nil, fmt.Errorf("dialing %s: %w (HTTP %d)", url, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	endpoint := newWebSocketEndpoint(conn, maxFrameSize)
	endpoint.info.RemoteAddress = url
	return endpoint, nil
}

// WebSocketEndpoint carries one envelope per binary WebSocket message.
type WebSocketEndpoint struct {
	conn         *websocket.Conn
	info         Info
	maxFrameSize int

	// gorilla/websocket permits one concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ Endpoint = (*WebSocketEndpoint)(nil)

func newWebSocketEndpoint(conn *websocket.Conn, maxFrameSize int) *WebSocketEndpoint {
	conn.SetReadLimit(int64(maxFrameSize))
	return &WebSocketEndpoint{conn: conn, maxFrameSize: maxFrameSize, info: Info{Kind: "websocket"}}
}

func (e *WebSocketEndpoint) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(message) > e.maxFrameSize {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrFrameTooLarge, len(message), e.maxFrameSize)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	e.conn.SetWriteDeadline(deadline)
	if err := e.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
		if isWebSocketClose(err) {
			return closedError(err)
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (e *WebSocketEndpoint) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { e.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		messageType, message, err := e.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// gorilla/websocket connections are unusable after a
				// read error, timeouts included.
				e.Close()
				return nil, ctxErr
			}
			if isWebSocketClose(err) {
				return nil, closedError(err)
			}
			return nil, fmt.Errorf("websocket read: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return message, nil
	}
}

// Close sends a close frame (best effort) and closes the connection.
func (e *WebSocketEndpoint) Close() error {
	e.closeOnce.Do(func() {
		// WriteControl is safe alongside a concurrent WriteMessage.
		e.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}

func (e *WebSocketEndpoint) Info() Info { return e.info }

func isWebSocketClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || netutil.IsExpectedCloseError(err)
}
