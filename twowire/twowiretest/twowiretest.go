// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package twowiretest is meant to be used to test drivers over a fake
// two-wire controller.
package twowiretest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/envmon/twowire"
	"periph.io/x/conn/v3/physic"
)

// Device is a target on the fake bus.
type Device interface {
	// Write receives a data byte and returns whether it is acknowledged.
	Write(b byte) bool
	// Read returns the next byte to send to the master.
	Read() byte
}

// Memory is a Device that records written bytes and replays bytes to read.
type Memory struct {
	sync.Mutex
	Written []byte
	// ToRead is consumed by reads. 0xFF is returned once it is exhausted,
	// like a released data line.
	ToRead []byte
	// Nack refuses every data byte.
	Nack bool
}

// Write implements Device.
func (m *Memory) Write(b byte) bool {
	m.Lock()
	defer m.Unlock()
	m.Written = append(m.Written, b)
	return !m.Nack
}

// Read implements Device.
func (m *Memory) Read() byte {
	m.Lock()
	defer m.Unlock()
	if len(m.ToRead) == 0 {
		return 0xFF
	}
	b := m.ToRead[0]
	m.ToRead = m.ToRead[1:]
	return b
}

// Target implements twowire.Registers and simulates a controller with the
// Devices attached to its bus.
//
// Every bus event is appended to Log: "start", "restart", "stop",
// "addr 0x27 w", "w 0x08", "r 0x42", with a " nack" suffix when the byte was
// not acknowledged.
type Target struct {
	sync.Mutex
	// Devices is keyed by 7-bit address.
	Devices map[uint8]Device
	// Wedged prevents the completion flag from ever being set.
	Wedged bool
	// Drop is the number of upcoming transfers whose completion flag is
	// never set.
	Drop int
	// Polls counts reads of the status register.
	Polls int
	// Speed is the last value passed to SetSpeed.
	Speed physic.Frequency
	Log   []string

	c1, s, d   uint8
	expectAddr bool
	reading    bool
	cur        Device
}

func (t *Target) String() string {
	return "twowiretest"
}

// SetSpeed records f.
func (t *Target) SetSpeed(f physic.Frequency) error {
	t.Lock()
	defer t.Unlock()
	t.Speed = f
	return nil
}

// Read implements twowire.Registers.
func (t *Target) Read(r twowire.Reg) uint8 {
	t.Lock()
	defer t.Unlock()
	switch r {
	case twowire.C1:
		return t.c1
	case twowire.S:
		t.Polls++
		return t.s
	case twowire.D:
		v := t.d
		if t.master() && t.c1&twowire.TX == 0 && t.cur != nil && t.reading {
			t.d = t.cur.Read()
			t.logf("r 0x%02x%s", t.d, nack(t.c1&twowire.TXAK != 0))
			t.complete(true)
		}
		return v
	}
	return 0
}

// Write implements twowire.Registers.
func (t *Target) Write(r twowire.Reg, v uint8) {
	t.Lock()
	defer t.Unlock()
	switch r {
	case twowire.C1:
		t.control(v)
	case twowire.S:
		t.s &^= v & (twowire.IICIF | twowire.ARBL)
	case twowire.D:
		t.d = v
		if !t.master() || t.c1&twowire.TX == 0 {
			return
		}
		if t.expectAddr {
			t.expectAddr = false
			addr := v >> 1
			t.reading = v&1 != 0
			t.cur = t.Devices[addr]
			dir := "w"
			if t.reading {
				dir = "r"
			}
			t.logf("addr 0x%02x %s%s", addr, dir, nack(t.cur == nil))
			t.complete(t.cur != nil)
			return
		}
		ok := t.cur != nil && !t.reading && t.cur.Write(v)
		t.logf("w 0x%02x%s", v, nack(!ok))
		t.complete(ok)
	}
}

func (t *Target) control(v uint8) {
	old := t.c1
	t.c1 = v &^ twowire.RSTA
	if v&twowire.IICEN == 0 {
		// A disabled module releases the bus.
		t.s &^= twowire.BUSY
		t.cur = nil
		t.expectAddr = false
		return
	}
	wasMaster := old&twowire.IICEN != 0 && old&twowire.MST != 0
	switch {
	case !wasMaster && v&twowire.MST != 0:
		t.Log = append(t.Log, "start")
		t.s |= twowire.BUSY
		t.expectAddr = true
		t.cur = nil
	case wasMaster && v&twowire.MST == 0:
		t.Log = append(t.Log, "stop")
		t.s &^= twowire.BUSY
		t.expectAddr = false
		t.cur = nil
	case v&twowire.RSTA != 0 && v&twowire.MST != 0:
		t.Log = append(t.Log, "restart")
		t.expectAddr = true
	}
}

func (t *Target) master() bool {
	return t.c1&twowire.IICEN != 0 && t.c1&twowire.MST != 0
}

// complete ends a byte transfer.
func (t *Target) complete(ack bool) {
	if ack {
		t.s &^= twowire.RXAK
	} else {
		t.s |= twowire.RXAK
	}
	if t.Wedged {
		return
	}
	if t.Drop > 0 {
		t.Drop--
		return
	}
	t.s |= twowire.IICIF | twowire.TCF
}

func (t *Target) logf(format string, a ...interface{}) {
	t.Log = append(t.Log, fmt.Sprintf(format, a...))
}

func nack(b bool) string {
	if b {
		return " nack"
	}
	return ""
}

var _ twowire.Registers = &Target{}
var _ Device = &Memory{}
