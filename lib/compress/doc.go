// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the per-frame compression used by the
// stream transports. Each frame carries a one-byte [Tag] naming the
// algorithm, so a sender may change its choice frame by frame and the
// receiver needs no configuration.
//
// Small frames (most request and response envelopes) are never worth
// compressing; [Auto] skips anything below [MinimumSize] and falls back
// to [None] when the compressed form is not smaller than the input.
package compress
