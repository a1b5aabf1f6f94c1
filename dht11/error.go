// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import "fmt"

// ChecksumError is returned by Read when the checksum does not match. The
// frame is still populated but must not be trusted.
type ChecksumError struct {
	Frame Frame
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("dht11: checksum %#02x does not match data sum %#02x", e.Frame.Checksum, e.Frame.Sum())
}

// TimeoutError is returned by Read when the line did not change level in
// time.
type TimeoutError struct {
	// Phase is the step of the exchange that timed out.
	Phase string
	// Bit is the bit being received, or -1 before the first bit.
	Bit int
}

func (e *TimeoutError) Error() string {
	if e.Bit < 0 {
		return "dht11: timeout waiting for " + e.Phase
	}
	return fmt.Sprintf("dht11: timeout waiting for %s of bit %d", e.Phase, e.Bit)
}
