// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so that bridge tests never block
// forever on a future that is not settled. They are the only place in
// the test suite where wall-clock timeouts appear; everything else uses
// lib/clock.
//
// [SocketDir] creates a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes.
//
// [UniqueID] generates distinct action, event, and channel names so
// that tests sharing a bridge or a Redis instance do not collide.
//
// All helpers call t.Fatalf on failure.
package testutil
