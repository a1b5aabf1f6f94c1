// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lcd controls a 20x4 HD44780 character display behind a PCF8574
// I²C backpack (LCD2004).
//
// The display runs in 4-bit mode. Every byte is sent as two nibbles on
// D4-D7, each nibble as an enable-high then enable-low write of the
// expander, all in one bus transaction. After each instruction or character
// the busy flag is read back through the expander.
//
// Text written with Write flows across the rows in order 0, 1, 2, 3 and
// wraps back to row 0. Row 3 only takes 13 characters since the last seven
// cells are reserved for the clock, written with WriteAt.
//
// # Datasheet
//
// https://www.sparkfun.com/datasheets/LCD/HD44780.pdf
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
package lcd

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
)

const (
	// DefaultAddress is the 7-bit address of the usual LCD2004 backpack.
	DefaultAddress uint16 = 0x27

	Rows = 4
	Cols = 20

	// ClockAddr is the DDRAM address of the clock field, row 3 column 13.
	ClockAddr byte = 0x61
	// TextCells is the number of cells used by Write before wrapping.
	TextCells = 3*Cols + 13
)

// Expander pins.
const (
	pinRS byte = 0x01
	pinRW byte = 0x02
	pinE  byte = 0x04
	pinBL byte = 0x08
)

// Instructions.
const (
	cmdClear    byte = 0x01
	cmdHome     byte = 0x02
	cmdEntry    byte = 0x06 // Increment, no shift
	cmdDisplay  byte = 0x08
	cmdShift    byte = 0x10
	cmdFunction byte = 0x28 // 4-bit, 2 line
	cmdDDRAM    byte = 0x80
)

var rowBase = [Rows]byte{0x00, 0x40, 0x14, 0x54}

// ErrBusy is returned when the display stays busy longer than
// Opts.BusyPolls reads.
var ErrBusy = errors.New("lcd: display busy")

// Opts holds the configuration options for the display.
type Opts struct {
	// Addr is the 7-bit address of the expander. Default is DefaultAddress.
	Addr uint16
	// BusyPolls is how many times the busy flag is read before giving up.
	// Default is 16.
	BusyPolls int
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Addr:      DefaultAddress,
	BusyPolls: 16,
}

// Dev is a 20x4 character display.
//
// Implements display.TextDisplay and display.DisplayBacklight.
type Dev struct {
	mu        sync.Mutex
	d         *i2c.Dev
	busyPolls int
	bl        byte
	on        bool
	cursor    bool
	blink     bool
	// count is the index of the next cell written by Write.
	count  int
	shadow [Rows][Cols]byte
}

// New initializes the display on bus and returns it cleared, on, with the
// backlight lit.
//
// The Opts can be nil.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		d:         &i2c.Dev{Bus: bus, Addr: opts.Addr},
		busyPolls: opts.BusyPolls,
		bl:        pinBL,
	}
	if d.d.Addr == 0 {
		d.d.Addr = DefaultAddress
	}
	if d.busyPolls <= 0 {
		d.busyPolls = DefaultOpts.BusyPolls
	}
	d.blank()
	if err := d.init(); err != nil {
		return nil, fmt.Errorf("lcd: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("HD44780 %dx%d on PCF8574@%#x", Cols, Rows, d.d.Addr)
}

// AutoScroll is not supported. Text wraps instead.
func (d *Dev) AutoScroll(enabled bool) error {
	return display.ErrNotImplemented
}

// Clear clears the screen and restarts the text at row 0.
func (d *Dev) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	d.blank()
	return d.command(cmdClear)
}

// Cols returns the number of columns.
func (d *Dev) Cols() int {
	return Cols
}

// Rows returns the number of rows.
func (d *Dev) Rows() int {
	return Rows
}

// MinCol returns 1.
func (d *Dev) MinCol() int {
	return 1
}

// MinRow returns 1.
func (d *Dev) MinRow() int {
	return 1
}

// Cursor sets the cursor mode.
func (d *Dev) Cursor(modes ...display.CursorMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range modes {
		switch m {
		case display.CursorOff:
			d.cursor, d.blink = false, false
		case display.CursorUnderline:
			d.cursor = true
		case display.CursorBlock, display.CursorBlink:
			d.blink = true
		default:
			return fmt.Errorf("lcd: unexpected cursor mode %d", m)
		}
	}
	return d.command(d.control())
}

// Home moves the cursor to the first cell.
func (d *Dev) Home() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = 0
	return d.command(cmdHome)
}

// Move moves the cursor one cell forward or backward.
func (d *Dev) Move(dir display.CursorDirection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch dir {
	case display.Forward:
		d.count++
		return d.command(cmdShift | 0x04)
	case display.Backward:
		if d.count > 0 {
			d.count--
		}
		return d.command(cmdShift)
	default:
		return fmt.Errorf("lcd: %w", display.ErrNotImplemented)
	}
}

// MoveTo moves the cursor. Rows and columns start at 1.
func (d *Dev) MoveTo(row, col int) error {
	if row < 1 || row > Rows || col < 1 || col > Cols {
		return fmt.Errorf("lcd: MoveTo(%d, %d) out of range", row, col)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count = (row-1)*Cols + col - 1
	return d.command(cmdDDRAM | cellAddr(d.count))
}

// Display turns the display on or off.
func (d *Dev) Display(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = on
	return d.command(d.control())
}

// Backlight implements display.DisplayBacklight. The backlight is either on
// or off.
func (d *Dev) Backlight(intensity display.Intensity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if intensity == 0 {
		d.bl = 0
	} else {
		d.bl = pinBL
	}
	return d.d.Tx([]byte{d.bl}, nil)
}

// Lit reports whether the backlight is on.
func (d *Dev) Lit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bl != 0
}

// Write writes characters at the cursor, moving to the next row at the end
// of each row.
func (d *Dev) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range p {
		if d.count == TextCells || d.count >= Rows*Cols {
			d.count = 0
		}
		if d.count%Cols == 0 {
			if err := d.command(cmdDDRAM | cellAddr(d.count)); err != nil {
				return i, err
			}
		}
		if err := d.data(c); err != nil {
			return i, err
		}
		d.store(cellAddr(d.count), c)
		d.count++
	}
	return len(p), nil
}

// WriteString writes text. See Write.
func (d *Dev) WriteString(text string) (int, error) {
	return d.Write([]byte(text))
}

// WriteAt writes text starting at DDRAM address addr, leaving the cursor
// used by Write where it was.
func (d *Dev) WriteAt(addr byte, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.command(cmdDDRAM | addr&0x7F); err != nil {
		return err
	}
	for i := 0; i < len(text); i++ {
		if err := d.data(text[i]); err != nil {
			return err
		}
		d.store(addr+byte(i), text[i])
	}
	return d.command(cmdDDRAM | cellAddr(d.count%(Rows*Cols)))
}

// Reading clears the display and shows a measurement like
// "Humidity: 24.3%". frac is in tenths, as dht11.Frame reports it.
func (d *Dev) Reading(label string, integral, frac uint8, unit string) error {
	if err := d.Clear(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(d, "%s: %02d.%d%s", label, integral, frac, unit)
	return err
}

// Text returns the characters currently shown, one string per row.
func (d *Dev) Text() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, Rows)
	for i := range d.shadow {
		out[i] = string(d.shadow[i][:])
	}
	return out
}

// Halt clears the display and turns it and its backlight off.
func (d *Dev) Halt() error {
	err1 := d.Clear()
	err2 := d.Display(false)
	err3 := d.Backlight(0)
	return errors.Join(err1, err2, err3)
}

//

func (d *Dev) init() error {
	// The controller may be in 8-bit mode or halfway through a 4-bit
	// transfer; three 0x3 nibbles resynchronize it.
	time.Sleep(15 * time.Millisecond)
	if err := d.nibble(0x03, 0); err != nil {
		return err
	}
	time.Sleep(4100 * time.Microsecond)
	if err := d.nibble(0x03, 0); err != nil {
		return err
	}
	time.Sleep(100 * time.Microsecond)
	if err := d.nibble(0x03, 0); err != nil {
		return err
	}
	if err := d.nibble(0x02, 0); err != nil {
		return err
	}
	d.on = true
	for _, c := range []byte{cmdFunction, cmdDisplay, cmdClear, cmdEntry, d.control()} {
		if err := d.command(c); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) control() byte {
	c := cmdDisplay
	if d.on {
		c |= 0x04
	}
	if d.cursor {
		c |= 0x02
	}
	if d.blink {
		c |= 0x01
	}
	return c
}

func (d *Dev) command(c byte) error {
	return d.send(c, 0)
}

func (d *Dev) data(c byte) error {
	return d.send(c, pinRS)
}

// send writes both nibbles of b in one transaction and waits for the
// display to be ready.
func (d *Dev) send(b, rs byte) error {
	hi := b&0xF0 | d.bl | rs
	lo := b<<4 | d.bl | rs
	if err := d.d.Tx([]byte{hi | pinE, hi, lo | pinE, lo}, nil); err != nil {
		return err
	}
	return d.waitReady()
}

func (d *Dev) nibble(n, rs byte) error {
	v := n<<4 | d.bl | rs
	return d.d.Tx([]byte{v | pinE, v}, nil)
}

// waitReady reads the busy flag on D7. Both nibbles of the read cycle are
// clocked so the controller stays in sync.
func (d *Dev) waitReady() error {
	rd := 0xF0 | d.bl | pinRW
	var r [1]byte
	for i := 0; i < d.busyPolls; i++ {
		if err := d.d.Tx([]byte{rd | pinE}, r[:]); err != nil {
			return err
		}
		if err := d.d.Tx([]byte{rd, rd | pinE, rd}, nil); err != nil {
			return err
		}
		if r[0]&0x80 == 0 {
			return nil
		}
	}
	return ErrBusy
}

func (d *Dev) blank() {
	for i := range d.shadow {
		copy(d.shadow[i][:], strings.Repeat(" ", Cols))
	}
}

// store records c at DDRAM address addr in the shadow.
func (d *Dev) store(addr, c byte) {
	for row, base := range rowBase {
		if addr >= base && addr < base+Cols {
			d.shadow[row][addr-base] = c
			return
		}
	}
}

// cellAddr returns the DDRAM address of cell i, counted row by row.
func cellAddr(i int) byte {
	return rowBase[i/Cols] + byte(i%Cols)
}

var _ display.TextDisplay = &Dev{}
var _ display.DisplayBacklight = &Dev{}
var _ conn.Resource = &Dev{}
