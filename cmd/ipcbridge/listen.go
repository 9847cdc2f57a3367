// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
)

type listenParams struct {
	cli.ConfigFlags
	Count int
}

// eventLine is one line of listen output.
type eventLine struct {
	Event   string `json:"event"`
	Payload []any  `json:"payload"`
}

func listenCommand(stdout io.Writer) *cli.Command {
	var params listenParams
	return &cli.Command{
		Name:    "listen",
		Summary: "Print events published by the host",
		Description: `Subscribe to the named events (default: tick) and print each one as a
line of JSON until interrupted, the connection closes, or --count events
have been printed.`,
		Usage: "ipcbridge listen [event...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("listen", pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.IntVarP(&params.Count, "count", "n", 0, "exit after this many events (0: unlimited)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				args = []string{"tick"}
			}
			if params.Count < 0 {
				return cli.Validation("--count must not be negative")
			}
			return runListen(ctx, stdout, &params, args)
		},
	}
}

func runListen(ctx context.Context, stdout io.Writer, params *listenParams, events []string) error {
	cfg, err := params.Load()
	if err != nil {
		return err
	}
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return err
	}

	peer := bridge.New(cfg.Bridge.Channel, cli.BridgeOptions(cfg, logger)...)
	defer peer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listeners run on the connection's event goroutine, one at a time,
	// but the output error is read from this goroutine.
	var mu sync.Mutex
	var printed int
	var writeErr error
	write := func(message bridge.Message) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil || (params.Count > 0 && printed >= params.Count) {
			return
		}
		line := eventLine{Event: message.Name, Payload: make([]any, message.Len())}
		for i := range line.Payload {
			var value any
			if err := message.Decode(i, &value); err != nil {
				logger.Warn("undecodable event argument", "event", message.Name, "index", i, "error", err)
				continue
			}
			line.Payload[i] = cli.Printable(value)
		}
		if writeErr = cli.WriteJSONLine(stdout, line); writeErr != nil {
			cancel()
			return
		}
		printed++
		if params.Count > 0 && printed >= params.Count {
			cancel()
		}
	}
	for _, event := range events {
		peer.On(event, write)
	}

	endpoint, err := cli.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	conn, err := peer.Attach(endpoint)
	if err != nil {
		return cli.Internal("attaching: %w", err)
	}
	logger.Info("listening", "events", events, "transport", cfg.Transport.Kind)

	select {
	case <-ctx.Done():
	case <-conn.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return cli.Internal("writing event: %w", writeErr)
	}
	if params.Count > 0 && printed >= params.Count {
		return nil
	}
	select {
	case <-conn.Done():
		return cli.Transient("host disconnected: %w", conn.Err())
	default:
		return ctx.Err()
	}
}
