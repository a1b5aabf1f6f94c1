// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package envmon is a container for the packages of a real-time environment
// monitor: a DHT11 humidity and temperature sensor, a 20x4 character LCD on
// a two-wire bus, an elapsed time clock and a command terminal on a serial
// line.
//
// The drivers are written against periph.io abstractions and the register
// views of the peripherals they need, so the same code runs against real
// hardware from a Linux host and against fakes in tests.
//
// See cmd/envmon for the executable.
package envmon
