// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

// Built-in catalog. Peers written in Go share these declarations; the
// CLI calls them by name.
var (
	// Ping answers with the host's current time.
	Ping = bridge.Action[struct{}, PingResponse]{Name: "ping"}

	// Sleep waits for the given duration ("250ms", "5s") unless the
	// caller cancels first.
	Sleep = bridge.Action[string, string]{Name: "sleep"}

	// Info describes the bridge and the calling peer.
	Info = bridge.Action[struct{}, InfoResponse]{Name: "bridge.info"}

	// Tick is published every host.tick_interval.
	Tick = bridge.Event[TickPayload]{Name: "tick"}
)

// echoAction returns its first argument unchanged.
const echoAction = "echo"

// maxSleep bounds a single sleep request.
const maxSleep = 10 * time.Minute

// PingResponse is the result of ping.
type PingResponse struct {
	Time string `json:"time"`
}

// InfoResponse is the result of bridge.info.
type InfoResponse struct {
	Channel     string        `json:"channel"`
	Codec       string        `json:"codec"`
	Transport   string        `json:"transport"`
	Connections int           `json:"connections"`
	Uptime      string        `json:"uptime"`
	Build       version.Build `json:"build"`
	Peer        PeerInfo      `json:"peer"`
}

// PeerInfo identifies the connection a request arrived on.
type PeerInfo struct {
	ConnectionID  string `json:"connection_id"`
	Kind          string `json:"kind"`
	RemoteAddress string `json:"remote_address,omitempty"`
	Credentials   string `json:"credentials"`
}

// TickPayload is the payload of the tick event.
type TickPayload struct {
	Sequence uint64 `json:"sequence"`
	Time     string `json:"time"`
}

// invalidDuration is the reason attached to a sleep request that cannot
// be parsed.
const invalidDuration = "invalid_duration"

// registerCatalog installs the built-in actions on h.bridge.
func (h *host) registerCatalog() error {
	if err := h.bridge.Handle(echoAction, echo); err != nil {
		return err
	}
	if err := bridge.HandleAction(h.bridge, Ping, h.ping); err != nil {
		return err
	}
	if err := bridge.HandleAction(h.bridge, Sleep, h.sleep); err != nil {
		return err
	}
	return bridge.HandleAction(h.bridge, Info, h.info)
}

func echo(ctx context.Context, request *bridge.Request) (any, error) {
	if request.Len() == 0 {
		return nil, nil
	}
	return request.Payload[0], nil
}

func (h *host) ping(ctx context.Context, _ struct{}) (PingResponse, error) {
	return PingResponse{Time: h.clock.Now().UTC().Format(time.RFC3339Nano)}, nil
}

func (h *host) sleep(ctx context.Context, request string) (string, error) {
	duration, err := time.ParseDuration(request)
	if err != nil {
		return "", bridge.WithReason(invalidDuration, err)
	}
	if duration < 0 || duration > maxSleep {
		return "", bridge.WithReason(invalidDuration, fmt.Errorf("duration %s outside [0, %s]", duration, maxSleep))
	}

	select {
	case <-h.clock.After(duration):
		return "slept " + duration.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *host) info(ctx context.Context, _ struct{}) (InfoResponse, error) {
	response := InfoResponse{
		Channel:     h.bridge.Channel(),
		Codec:       h.bridge.Codec().Name(),
		Transport:   h.cfg.Transport.Kind,
		Connections: len(h.bridge.Conns()),
		Uptime:      h.clock.Now().Sub(h.started).Round(time.Millisecond).String(),
		Build:       version.Current(),
	}
	if conn, ok := bridge.ConnFromContext(ctx); ok {
		info := conn.Info()
		response.Peer = PeerInfo{
			ConnectionID:  conn.ID(),
			Kind:          info.Kind,
			RemoteAddress: info.RemoteAddress,
			Credentials:   info.Credentials.String(),
		}
	}
	return response, nil
}
