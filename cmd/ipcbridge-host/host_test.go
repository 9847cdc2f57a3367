// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/config"
	"github.com/bureau-foundation/ipcbridge/lib/testutil"
)

const testTimeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testHost struct {
	host     *host
	clock    *clock.FakeClock
	registry *prometheus.Registry
	peer     *bridge.Bridge
	address  string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestHost runs a host on a Unix socket with a fake clock and
// attaches one peer to it.
func startTestHost(t *testing.T, modify func(*config.Config)) *testHost {
	t.Helper()

	cfg := config.Builtin()
	cfg.Transport.SocketPath = filepath.Join(testutil.SocketDir(t), "host.sock")
	cfg.Host.TickInterval = "1s"
	if modify != nil {
		modify(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	fake := clock.Fake(epoch)
	registry := prometheus.NewRegistry()
	h, err := newHost(cfg, discardLogger(), fake, registry)
	if err != nil {
		t.Fatalf("newHost: %v", err)
	}
	ready := make(chan string, 1)
	h.ready = ready

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- h.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		err := testutil.RequireReceive(t, stopped, testTimeout, "host shutdown")
		if err != nil {
			t.Errorf("run() = %v, want nil after cancellation", err)
		}
	})

	address := testutil.RequireReceive(t, ready, testTimeout, "host ready")

	// Peers dial the bound address, which differs from the configured
	// one when the port was ephemeral.
	dialConfig := *cfg
	switch cfg.Transport.Kind {
	case config.TransportTCP:
		dialConfig.Transport.ListenAddr = address
	case config.TransportWebSocket:
		parsed, err := url.Parse(address)
		if err != nil {
			t.Fatalf("parsing announced address %q: %v", address, err)
		}
		dialConfig.Transport.ListenAddr = parsed.Host
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), testTimeout)
	defer dialCancel()
	endpoint, err := cli.Dial(dialCtx, &dialConfig)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	peer := bridge.New(cfg.Bridge.Channel, cli.BridgeOptions(cfg, discardLogger())...)
	t.Cleanup(func() { peer.Close() })
	if _, err := peer.Attach(endpoint); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	return &testHost{host: h, clock: fake, registry: registry, peer: peer, address: address}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestEcho(t *testing.T) {
	th := startTestHost(t, nil)

	type sample struct {
		Path  string `json:"path"`
		Depth int    `json:"depth"`
	}
	result, err := th.peer.Call(testContext(t), "echo", sample{Path: "/workspace", Depth: 2})
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	var echoed sample
	if err := result.Decode(&echoed); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if echoed != (sample{Path: "/workspace", Depth: 2}) {
		t.Errorf("echo = %+v", echoed)
	}

	result, err = th.peer.Call(testContext(t), "echo")
	if err != nil {
		t.Fatalf("echo with no arguments: %v", err)
	}
	var nothing any
	if err := result.Decode(&nothing); err != nil || nothing != nil {
		t.Errorf("empty echo = %v, %v; want nil", nothing, err)
	}
}

func TestPing(t *testing.T) {
	th := startTestHost(t, nil)

	response, err := bridge.Invoke(testContext(t), th.peer, Ping, struct{}{})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if response.Time != epoch.Format(time.RFC3339Nano) {
		t.Errorf("ping time = %q, want %q", response.Time, epoch.Format(time.RFC3339Nano))
	}
}

func TestInfoDescribesPeer(t *testing.T) {
	th := startTestHost(t, func(cfg *config.Config) { cfg.Bridge.Codec = "json" })

	response, err := bridge.Invoke(testContext(t), th.peer, Info, struct{}{})
	if err != nil {
		t.Fatalf("bridge.info: %v", err)
	}
	if response.Channel != bridge.DefaultChannel || response.Codec != "json" || response.Transport != "unix" {
		t.Errorf("info = %+v", response)
	}
	if response.Connections != 1 {
		t.Errorf("connections = %d, want 1", response.Connections)
	}
	if response.Peer.Kind != "unix" || response.Peer.ConnectionID == "" {
		t.Errorf("peer = %+v", response.Peer)
	}
	if response.Build.Version == "" {
		t.Error("build version missing")
	}
}

func TestSleepCompletesOnClock(t *testing.T) {
	th := startTestHost(t, nil)

	// The tick publisher holds one timer; the sleep adds another.
	call := th.peer.Go("sleep", "2s")
	th.clock.WaitForTimers(2)
	th.clock.Advance(2 * time.Second)

	result, err := call.Wait(testContext(t))
	if err != nil {
		t.Fatalf("sleep: %v", err)
	}
	var message string
	if err := result.Decode(&message); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if message != "slept 2s" {
		t.Errorf("sleep = %q", message)
	}
}

func TestSleepCancelled(t *testing.T) {
	th := startTestHost(t, nil)

	call := th.peer.Go("sleep", "1m")
	th.clock.WaitForTimers(2)
	call.Cancel()

	_, err := call.Wait(testContext(t))
	if !errors.Is(err, bridge.ErrCancelled) {
		t.Fatalf("cancelled sleep = %v, want ErrCancelled", err)
	}

	// The handler observed the cancellation and released its timer
	// select; the host still answers.
	if _, err := bridge.Invoke(testContext(t), th.peer, Ping, struct{}{}); err != nil {
		t.Fatalf("ping after cancel: %v", err)
	}
}

func TestSleepRejectsBadDuration(t *testing.T) {
	th := startTestHost(t, nil)

	for _, request := range []string{"soon", "1h"} {
		_, err := th.peer.Call(testContext(t), "sleep", request)
		var remote *bridge.RemoteError
		if !errors.As(err, &remote) {
			t.Fatalf("sleep %q = %v, want RemoteError", request, err)
		}
		if remote.Code != bridge.CodeHandlerFailure || remote.Reason != invalidDuration {
			t.Errorf("sleep %q: code=%q reason=%q", request, remote.Code, remote.Reason)
		}
	}
}

func TestTicksArePublished(t *testing.T) {
	th := startTestHost(t, nil)

	ticks := make(chan TickPayload, 4)
	bridge.Subscribe(th.peer, Tick, func(payload TickPayload) { ticks <- payload })

	th.clock.WaitForTimers(1)
	th.clock.Advance(time.Second)
	first := testutil.RequireReceive(t, ticks, testTimeout, "first tick")
	th.clock.Advance(time.Second)
	second := testutil.RequireReceive(t, ticks, testTimeout, "second tick")

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", first.Sequence, second.Sequence)
	}
	if first.Time != epoch.Add(time.Second).Format(time.RFC3339Nano) {
		t.Errorf("first tick time = %q", first.Time)
	}
}

func TestTickingDisabled(t *testing.T) {
	th := startTestHost(t, func(cfg *config.Config) { cfg.Host.TickInterval = "0s" })

	if _, err := bridge.Invoke(testContext(t), th.peer, Ping, struct{}{}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if pending := th.clock.PendingCount(); pending != 0 {
		t.Errorf("pending timers = %d, want 0 with ticking disabled", pending)
	}
}

func TestHostRecordsMetrics(t *testing.T) {
	th := startTestHost(t, nil)

	if _, err := bridge.Invoke(testContext(t), th.peer, Ping, struct{}{}); err != nil {
		t.Fatalf("ping: %v", err)
	}

	families, err := th.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{"ipcbridge_requests_total", "ipcbridge_pending_calls"} {
		if !found[name] {
			t.Errorf("registry missing %s", name)
		}
	}
}

func TestNetworkTransports(t *testing.T) {
	for _, kind := range []string{config.TransportTCP, config.TransportWebSocket} {
		t.Run(kind, func(t *testing.T) {
			th := startTestHost(t, func(cfg *config.Config) {
				cfg.Transport.Kind = kind
				cfg.Transport.ListenAddr = "127.0.0.1:0"
				cfg.Transport.Compression = "zstd"
			})

			long := strings.Repeat("payload ", 1024)
			result, err := th.peer.Call(testContext(t), "echo", long)
			if err != nil {
				t.Fatalf("echo over %s: %v", kind, err)
			}
			var echoed string
			if err := result.Decode(&echoed); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if echoed != long {
				t.Errorf("echo over %s corrupted the payload", kind)
			}

			response, err := bridge.Invoke(testContext(t), th.peer, Info, struct{}{})
			if err != nil {
				t.Fatalf("bridge.info: %v", err)
			}
			if response.Peer.Kind != kind || response.Peer.RemoteAddress == "" {
				t.Errorf("peer = %+v", response.Peer)
			}
		})
	}
}
