// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/bridge"
	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

type callParams struct {
	cli.ConfigFlags
	Timeout time.Duration
	Raw     bool
}

func callCommand(stdout io.Writer) *cli.Command {
	var params callParams
	return &cli.Command{
		Name:    "call",
		Summary: "Invoke an action on the host and print its result",
		Description: `Invoke an action on the host and print its result as JSON.

Each argument after the action name is parsed as JSON when possible and
sent as a plain string otherwise. A rejected request exits with status 3;
a connection failure or timeout exits with status 4.`,
		Usage: "ipcbridge call <action> [args...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			params.AddFlags(flagSet)
			flagSet.DurationVarP(&params.Timeout, "timeout", "t", 30*time.Second, "give up and cancel the request after this long (0: wait indefinitely)")
			flagSet.BoolVar(&params.Raw, "raw", false, "print the result in CBOR diagnostic notation instead of JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Round-trip a structured value", Command: `ipcbridge call echo '{"path":"/workspace","depth":2}'`},
			{Description: "Cancel a slow handler after one second", Command: "ipcbridge call sleep 5s --timeout 1s"},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Validation("action name required")
			}
			return runCall(ctx, stdout, &params, args[0], cli.ParseArguments(args[1:]))
		},
	}
}

func runCall(ctx context.Context, stdout io.Writer, params *callParams, action string, arguments []any) error {
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

	endpoint, err := cli.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := peer.Attach(endpoint); err != nil {
		return cli.Internal("attaching: %w", err)
	}

	var result bridge.Result
	if params.Timeout > 0 {
		result, err = peer.CallTimeout(ctx, params.Timeout, action, arguments...)
	} else {
		result, err = peer.Call(ctx, action, arguments...)
	}
	if err != nil {
		return fmt.Errorf("calling %q: %w", action, err)
	}

	if params.Raw {
		if len(result.Raw()) == 0 {
			_, err = fmt.Fprintln(stdout, "null")
			return err
		}
		if peer.Codec().Name() != codec.CBOR.Name() {
			_, err = fmt.Fprintf(stdout, "%s\n", result.Raw())
			return err
		}
		notation, err := codec.Diagnose(result.Raw())
		if err != nil {
			return cli.Internal("formatting result: %w", err)
		}
		_, err = fmt.Fprintln(stdout, notation)
		return err
	}

	var value any
	if err := result.Decode(&value); err != nil {
		return cli.Internal("decoding result of %q: %w", action, err)
	}
	return cli.WriteJSON(stdout, cli.Printable(value))
}
