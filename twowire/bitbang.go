// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// stretchSpins bounds how long a target may hold SCL low.
const stretchSpins = 10000

// Bitbang implements Registers on two open-drain GPIO lines.
//
// Every byte transfer runs synchronously inside the register access that
// starts it, so the completion flag is already set when the Master polls it.
// A line stuck low or a lost arbitration leaves the flag clear and sets ARBL,
// which makes the Master run its recovery.
type Bitbang struct {
	mu       sync.Mutex
	scl, sda gpio.PinIO
	half     time.Duration
	c1, s, d uint8
	err      error
}

// NewBitbang returns Registers driving scl and sda at frequency f. Both
// lines are released.
func NewBitbang(scl, sda gpio.PinIO, f physic.Frequency) (*Bitbang, error) {
	if scl == nil || sda == nil {
		return nil, errors.New("twowire: both SCL and SDA are required")
	}
	b := &Bitbang{scl: scl, sda: sda}
	if err := b.SetSpeed(f); err != nil {
		return nil, err
	}
	if err := scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("twowire: %s: %w", scl, err)
	}
	if err := sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("twowire: %s: %w", sda, err)
	}
	return b, nil
}

func (b *Bitbang) String() string {
	return fmt.Sprintf("bitbang(%s, %s)", b.scl, b.sda)
}

// SetSpeed sets the SCL frequency.
func (b *Bitbang) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("twowire: invalid speed %s", f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.half = f.Period() / 2
	return nil
}

// SCL implements i2c.Pins.
func (b *Bitbang) SCL() gpio.PinIO {
	return b.scl
}

// SDA implements i2c.Pins.
func (b *Bitbang) SDA() gpio.PinIO {
	return b.sda
}

// Err returns the first GPIO error seen, if any.
func (b *Bitbang) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Read implements Registers.
func (b *Bitbang) Read(r Reg) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r {
	case C1:
		return b.c1
	case S:
		return b.s
	case D:
		v := b.d
		if b.master() && b.c1&TX == 0 {
			if d, ok := b.readByte(b.c1&TXAK == 0); ok {
				b.d = d
				b.s |= IICIF | TCF
			} else {
				b.s |= ARBL
			}
		}
		return v
	}
	return 0
}

// Write implements Registers.
func (b *Bitbang) Write(r Reg, v uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r {
	case C1:
		b.control(v)
	case S:
		b.s &^= v & (IICIF | ARBL)
	case D:
		b.d = v
		if !b.master() || b.c1&TX == 0 {
			return
		}
		b.s &^= TCF
		acked, ok := b.writeByte(v)
		if !ok {
			b.s |= ARBL
			return
		}
		if acked {
			b.s &^= RXAK
		} else {
			b.s |= RXAK
		}
		b.s |= IICIF | TCF
	}
}

// Halt releases both lines.
func (b *Bitbang) Halt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(b.sda)
	b.release(b.scl)
	return b.err
}

func (b *Bitbang) control(v uint8) {
	old := b.c1
	b.c1 = v &^ RSTA
	if v&IICEN == 0 {
		if old&IICEN != 0 && old&MST != 0 {
			b.stop()
		}
		b.release(b.sda)
		b.release(b.scl)
		b.s &^= BUSY
		return
	}
	// Enabling the module with MST already set is a start as well.
	wasMaster := old&IICEN != 0 && old&MST != 0
	switch {
	case !wasMaster && v&MST != 0:
		b.start()
		b.s |= BUSY
	case wasMaster && v&MST == 0:
		b.stop()
		b.s &^= BUSY
	case v&RSTA != 0 && v&MST != 0:
		b.restart()
	}
}

func (b *Bitbang) master() bool {
	return b.c1&IICEN != 0 && b.c1&MST != 0
}

func (b *Bitbang) start() {
	b.release(b.sda)
	b.clockHigh()
	b.delay()
	b.low(b.sda)
	b.delay()
	b.low(b.scl)
}

func (b *Bitbang) restart() {
	b.release(b.sda)
	b.delay()
	b.clockHigh()
	b.delay()
	b.low(b.sda)
	b.delay()
	b.low(b.scl)
}

func (b *Bitbang) stop() {
	b.low(b.sda)
	b.delay()
	b.clockHigh()
	b.delay()
	b.release(b.sda)
	b.delay()
}

// writeByte clocks v out MSB first and returns whether the target
// acknowledged. ok is false if the bus could not be driven.
func (b *Bitbang) writeByte(v uint8) (acked, ok bool) {
	for i := 7; i >= 0; i-- {
		bit := v&(1<<uint(i)) != 0
		if bit {
			b.release(b.sda)
		} else {
			b.low(b.sda)
		}
		b.delay()
		if !b.clockHigh() {
			return false, false
		}
		if bit && b.sda.Read() == gpio.Low {
			// Another device pulls SDA low.
			b.low(b.scl)
			return false, false
		}
		b.delay()
		b.low(b.scl)
	}
	ack, ok := b.readBit()
	return ok && !ack, ok
}

// readByte clocks a byte in MSB first and sends an acknowledge bit.
func (b *Bitbang) readByte(ack bool) (uint8, bool) {
	var v uint8
	for i := 0; i < 8; i++ {
		bit, ok := b.readBit()
		if !ok {
			return 0, false
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	if ack {
		b.low(b.sda)
	} else {
		b.release(b.sda)
	}
	b.delay()
	if !b.clockHigh() {
		return 0, false
	}
	b.delay()
	b.low(b.scl)
	b.release(b.sda)
	return v, true
}

func (b *Bitbang) readBit() (bool, bool) {
	b.release(b.sda)
	b.delay()
	if !b.clockHigh() {
		return false, false
	}
	b.delay()
	bit := b.sda.Read() == gpio.High
	b.low(b.scl)
	return bit, true
}

// clockHigh releases SCL and waits for targets stretching the clock.
func (b *Bitbang) clockHigh() bool {
	b.release(b.scl)
	for i := 0; i < stretchSpins; i++ {
		if b.scl.Read() == gpio.High {
			return true
		}
	}
	return false
}

func (b *Bitbang) low(p gpio.PinIO) {
	if err := p.Out(gpio.Low); err != nil && b.err == nil {
		b.err = fmt.Errorf("twowire: %s: %w", p, err)
	}
}

func (b *Bitbang) release(p gpio.PinIO) {
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil && b.err == nil {
		b.err = fmt.Errorf("twowire: %s: %w", p, err)
	}
}

func (b *Bitbang) delay() {
	for start := time.Now(); time.Since(start) < b.half; {
	}
}

var _ Registers = &Bitbang{}
var _ i2c.Pins = &Bitbang{}
