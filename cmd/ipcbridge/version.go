// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/cmd/ipcbridge/cli"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

func versionCommand(stdout io.Writer) *cli.Command {
	var full, asJSON bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&full, "full", false, "include Go version and platform")
			flagSet.BoolVar(&asJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			switch {
			case asJSON:
				return cli.WriteJSON(stdout, version.Current())
			case full:
				_, err := fmt.Fprintf(stdout, "ipcbridge %s\n", version.Full())
				return err
			default:
				_, err := fmt.Fprintf(stdout, "ipcbridge %s\n", version.Info())
				return err
			}
		},
	}
}
