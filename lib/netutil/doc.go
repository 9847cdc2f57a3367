// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides connection and HTTP I/O helpers shared by the
// transports.
//
// [IsExpectedCloseError] classifies errors that occur during normal
// connection teardown so transports can report a disconnect rather than
// a failure. [ErrorBody] reads a bounded, single-line excerpt of an HTTP
// error response for diagnostics, such as a refused WebSocket upgrade.
package netutil
