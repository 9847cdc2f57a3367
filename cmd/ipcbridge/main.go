// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ipcbridge is the peer-side client for an ipcbridge host. It connects
// over the configured transport, then either invokes one action or
// prints published events until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/process"
)

func main() {
	ctx, stop := process.SignalContext(context.Background())
	err := root(os.Stdout).Execute(ctx, os.Args[1:])
	stop()

	var exitError *cli.ExitError
	if err != nil && !errors.As(err, &exitError) && cli.ExitCode(err) != 0 {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}

// root builds the command tree. stdout receives command output so tests
// can capture it.
func root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:        "ipcbridge",
		Description: "Peer-side client for an ipcbridge host: invoke actions and watch events.",
		Subcommands: []*cli.Command{
			callCommand(stdout),
			listenCommand(stdout),
			versionCommand(stdout),
		},
		Examples: []cli.Example{
			{
				Description: "Echo a value through the host",
				Command:     "ipcbridge call echo hello",
			},
			{
				Description: "Watch tick events over a WebSocket",
				Command:     "ipcbridge listen --transport websocket -a 127.0.0.1:9100 tick",
			},
		},
	}
}
