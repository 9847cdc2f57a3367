// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework shared by the
// ipcbridge binaries.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and help output with
// examples. Unknown subcommands and flags get a "did you mean"
// suggestion when one is within edit distance 3.
//
// Errors carry an [ErrorCategory] that [ExitCode] turns into a process
// exit status: 2 for bad input, 3 when the remote side rejected a
// request, 4 for connection failures and timeouts.
//
// [ConfigFlags] loads lib/config with flag overrides. [Dial] connects a
// peer to the host over the configured transport, and [BridgeOptions]
// turns the bridge section into bridge options.
package cli
