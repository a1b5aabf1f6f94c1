// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ticks provides a monotonic counter advanced by a periodic
// interrupt, and the busy-poll waits the protocol drivers build on it.
//
// The counter has a single writer, Tick, which is either called from the
// platform's timer interrupt or from the host driver started with Start.
// Any number of readers may query it. Waits never run inside Tick.
//
// Elapsed time is measured against a mark set by Reset, so a wait looks like
//
//	src.Reset()
//	for src.Elapsed() < limit {
//	}
//
// with the difference that every wait in this package is bounded.
package ticks
