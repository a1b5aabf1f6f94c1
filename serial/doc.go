// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serial implements an interrupt-driven duplex byte transport over a
// UART register interface.
//
// The Transport owns two ring buffers. Foreground code fills the outbound
// buffer with Send and drains the inbound buffer with RecvByte; the interrupt
// handler, HandleInterrupt, moves one byte per condition between the buffers
// and the data register. The transmit interrupt is enabled exactly while the
// outbound buffer holds bytes.
//
// On a host, Line provides the register interface on top of an
// io.ReadWriter, such as a serial device or a periph.io conn.Conn, and
// Line.Serve plays the role of the interrupt controller.
package serial
