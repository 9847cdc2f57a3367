// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ipcbridge-host is the privileged side of an ipcbridge: it accepts
// peers on the configured transport, serves the built-in action
// catalog, publishes periodic tick events, and exports Prometheus
// metrics.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/clock"
	"github.com/bureau-foundation/ipcbridge/lib/process"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

func main() {
	ctx, stop := process.SignalContext(context.Background())
	defer stop()

	if err := command().Execute(ctx, os.Args[1:]); err != nil {
		stop()
		process.Fatal(err)
	}
}

func command() *cli.Command {
	var flags cli.ConfigFlags
	var showVersion bool
	return &cli.Command{
		Name: "ipcbridge-host",
		Description: `Accept ipcbridge peers and serve the built-in catalog: echo, ping,
sleep, and bridge.info. Publishes a "tick" event every host.tick_interval.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ipcbridge-host", pflag.ContinueOnError)
			flags.AddFlags(flagSet)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Serve on the default Unix socket", Command: "ipcbridge-host"},
			{Description: "Serve WebSocket peers with a config file", Command: "ipcbridge-host --config /etc/ipcbridge/host.yaml"},
		},
		Run: func(ctx context.Context, args []string) error {
			if showVersion {
				fmt.Printf("ipcbridge-host %s\n", version.Info())
				return nil
			}
			if len(args) > 0 {
				return cli.Validation("unexpected arguments: %v", args)
			}

			cfg, err := flags.Load()
			if err != nil {
				return err
			}
			logger, err := cli.NewLogger(cfg)
			if err != nil {
				return err
			}
			logger = logger.With("component", "host")
			logger.Info("starting ipcbridge-host", version.LogAttributes()...)

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			host, err := newHost(cfg, logger, clock.Real(), registry)
			if err != nil {
				return err
			}
			return host.run(ctx)
		},
	}
}
