// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import "strconv"

// Reg is a controller register.
type Reg uint8

// Controller registers.
const (
	C1 Reg = iota // Control
	S             // Status
	D             // Data
)

func (r Reg) String() string {
	switch r {
	case C1:
		return "C1"
	case S:
		return "S"
	case D:
		return "D"
	default:
		return "Reg(" + strconv.Itoa(int(r)) + ")"
	}
}

// C1 bits.
//
// Setting MST generates a start condition and clearing it a stop. Setting
// IICEN while MST is already set also generates a start. RSTA
// generates a repeated start and always reads back as 0. TXAK selects a
// no-acknowledge for the next received byte.
const (
	IICEN uint8 = 0x80 // Module enable
	IICIE uint8 = 0x40 // Interrupt enable
	MST   uint8 = 0x20 // Master mode
	TX    uint8 = 0x10 // Transmit mode
	TXAK  uint8 = 0x08 // Transmit no-acknowledge
	RSTA  uint8 = 0x04 // Repeated start
)

// S bits.
//
// IICIF and ARBL are cleared by writing 1.
const (
	TCF   uint8 = 0x80 // Transfer complete
	BUSY  uint8 = 0x20 // Bus busy
	ARBL  uint8 = 0x10 // Arbitration lost
	IICIF uint8 = 0x02 // Interrupt flag, set on byte completion
	RXAK  uint8 = 0x01 // No acknowledge received
)

// Registers is the register interface of a two-wire controller.
//
// In master transmit mode, writing D clocks a byte out. In master receive
// mode, reading D returns the last received byte and clocks the next one
// in. IICIF is set in S when a byte transfer completes.
type Registers interface {
	Read(r Reg) uint8
	Write(r Reg, v uint8)
}

// Phase is the phase of the transaction in progress.
type Phase uint8

// Transaction phases.
const (
	Idle Phase = iota
	Start
	Address
	Data
	Stop
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Start:
		return "Start"
	case Address:
		return "Address"
	case Data:
		return "Data"
	case Stop:
		return "Stop"
	default:
		return "Phase(" + strconv.Itoa(int(p)) + ")"
	}
}
