// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The bridge stamps every pending call with its creation time, the
// CallTimeout helper races calls against a timer, and the host's tick
// publisher runs on a ticker. All three take a [Clock] so tests can
// drive them with [Fake] instead of sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go publisher.Run(ctx)
//	c.WaitForTimers(1)         // wait for the goroutine to register
//	c.Advance(5 * time.Second) // fire deterministically
package clock
