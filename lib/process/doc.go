// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the ipcbridge
// binaries. These functions centralize the raw I/O that happens before
// the structured logger exists:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized.
//   - Process exit after an unrecoverable error in main(), with a
//     clean exit when the error is a signal-driven cancellation.
//
// [SignalContext] ties a run() context to SIGINT and SIGTERM.
package process
