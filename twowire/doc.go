// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package twowire implements a single-master two-wire (I²C) bus controller
// driven through a byte-oriented register interface.
//
// Master sequences start, address, data and stop phases by writing the
// control register and polling the completion flag. A completion flag that is
// not observed within LockThreshold polls means the bus is wedged: the master
// then runs a recovery sequence that clocks a dummy byte out and toggles
// start and stop, and carries on as if the wait had completed. Recovery is
// reported through Recovered and Recoveries, never as an error from
// Read8 or Write8.
//
// Master also implements i2c.Bus so periph.io device drivers can use it.
//
// Registers can be a memory mapped peripheral, the Bitbang implementation on
// two GPIO lines, or twowiretest.Target in tests.
package twowire
