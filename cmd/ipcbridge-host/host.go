// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/config"
	"github.com/bureau-foundation/ipcbridge/transport"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 5 * time.Second

// host owns the bridge and everything serving it.
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	registry *prometheus.Registry
	bridge   *bridge.Bridge
	started  time.Time

	// ready, if non-nil, receives the transport address once peers can
	// connect. Tests use it to learn ephemeral ports.
	ready chan<- string
}

func newHost(cfg *config.Config, logger *slog.Logger, clk clock.Clock, registry *prometheus.Registry) (*host, error) {
	options := cli.BridgeOptions(cfg, logger)
	options = append(options,
		bridge.WithClock(clk),
		bridge.WithMetrics(bridge.NewMetrics(registry)),
		bridge.WithListenerErrorHandler(func(event string, err error) {
			logger.Error("event listener failed", "event", event, "error", err)
		}),
	)

	h := &host{
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		registry: registry,
		bridge:   bridge.New(cfg.Bridge.Channel, options...),
		started:  clk.Now(),
	}
	if err := h.registerCatalog(); err != nil {
		h.bridge.Close()
		return nil, fmt.Errorf("registering catalog: %w", err)
	}
	return h, nil
}

// run serves until ctx is cancelled or a component fails, then closes
// the bridge. A cancelled ctx is a clean shutdown and returns nil.
func (h *host) run(ctx context.Context) error {
	defer h.bridge.Close()

	group, ctx := errgroup.WithContext(ctx)

	if err := h.serveTransport(ctx, group); err != nil {
		return err
	}
	if h.cfg.Metrics.ListenAddr != "" {
		if err := h.serveMetrics(ctx, group); err != nil {
			return err
		}
	}
	if interval, _ := h.cfg.Host.ParseTickInterval(); interval > 0 {
		group.Go(func() error {
			h.publishTicks(ctx, interval)
			return nil
		})
	}

	err := group.Wait()
	h.logger.Info("host stopped", "connections", len(h.bridge.Conns()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveTransport starts accepting peers on the configured transport.
func (h *host) serveTransport(ctx context.Context, group *errgroup.Group) error {
	switch h.cfg.Transport.Kind {
	case config.TransportUnix:
		if err := h.cfg.EnsureSocketDir(); err != nil {
			return err
		}
		listener, err := transport.ListenUnix(h.cfg.Transport.SocketPath, cli.StreamOptions(h.cfg))
		if err != nil {
			return err
		}
		h.serveListener(ctx, group, listener)

	case config.TransportTCP:
		listener, err := transport.ListenTCP(h.cfg.Transport.ListenAddr, cli.StreamOptions(h.cfg))
		if err != nil {
			return err
		}
		h.serveListener(ctx, group, listener)

	case config.TransportWebSocket:
		return h.serveWebSocket(ctx, group)

	case config.TransportRedis:
		endpoint, err := cli.DialRedis(ctx, h.cfg, transport.RedisHost)
		if err != nil {
			return err
		}
		conn, err := h.bridge.Attach(endpoint)
		if err != nil {
			return err
		}
		h.announce(transport.RedisTopic(h.cfg.Transport.RedisPrefix, h.cfg.Bridge.Channel, transport.RedisHost))
		group.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-conn.Done():
				return fmt.Errorf("redis connection lost: %w", conn.Err())
			}
		})

	default:
		return fmt.Errorf("unknown transport %q", h.cfg.Transport.Kind)
	}
	return nil
}

func (h *host) serveListener(ctx context.Context, group *errgroup.Group, listener transport.Listener) {
	h.announce(listener.Address())
	group.Go(func() error {
		return h.bridge.Serve(ctx, listener)
	})
}

func (h *host) serveWebSocket(ctx context.Context, group *errgroup.Group) error {
	socket, err := net.Listen("tcp", h.cfg.Transport.ListenAddr)
	if err != nil {
		return err
	}
	address := "ws://" + socket.Addr().String() + h.cfg.Transport.WebSocketPath
	listener := transport.NewWebSocketListener(address, h.cfg.Transport.MaxFrameSize, h.logger)

	mux := http.NewServeMux()
	mux.Handle(h.cfg.Transport.WebSocketPath, listener)
	h.serveHTTP(ctx, group, "websocket", socket, mux)
	h.serveListener(ctx, group, listener)
	return nil
}

func (h *host) serveMetrics(ctx context.Context, group *errgroup.Group) error {
	socket, err := net.Listen("tcp", h.cfg.Metrics.ListenAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry}))
	h.logger.Info("serving metrics", "address", socket.Addr().String())
	h.serveHTTP(ctx, group, "metrics", socket, mux)
	return nil
}

// serveHTTP runs an HTTP server on socket until ctx is cancelled.
func (h *host) serveHTTP(ctx context.Context, group *errgroup.Group, name string, socket net.Listener, handler http.Handler) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(h.logger.Handler(), slog.LevelWarn),
	}
	group.Go(func() error {
		if err := server.Serve(socket); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func (h *host) announce(address string) {
	h.logger.Info("accepting peers",
		"transport", h.cfg.Transport.Kind,
		"address", address,
		"channel", h.cfg.Bridge.Channel,
		"codec", h.cfg.Bridge.Codec,
	)
	if h.ready != nil {
		h.ready <- address
	}
}

// publishTicks publishes Tick every interval until ctx is cancelled.
func (h *host) publishTicks(ctx context.Context, interval time.Duration) {
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	var sequence uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sequence++
			payload := TickPayload{Sequence: sequence, Time: now.UTC().Format(time.RFC3339Nano)}
			if err := bridge.PublishEvent(h.bridge, Tick, payload); err != nil {
				h.logger.Warn("publishing tick failed", "sequence", sequence, "error", err)
			}
		}
	}
}
