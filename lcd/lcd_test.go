// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcd

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/GermanBionicSystems/envmon/twowire"
	"github.com/GermanBionicSystems/envmon/twowire/twowiretest"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/display/displaytest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

// fakeLCD decodes the expander writes of an HD44780 in 4-bit mode.
type fakeLCD struct {
	mu      sync.Mutex
	port    byte
	fourBit bool
	high    byte
	half    bool
	addr    byte
	ddram   [0x80]byte
	cmds    []byte
	on      bool
	// busy is the number of busy flag reads answered with busy set.
	busy int
}

func newFakeLCD() *fakeLCD {
	f := &fakeLCD{}
	copy(f.ddram[:], bytes.Repeat([]byte{' '}, len(f.ddram)))
	return f
}

func (f *fakeLCD) Write(b byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.port
	f.port = b
	// Data is latched on the falling edge of E.
	if prev&pinE == 0 || b&pinE != 0 || prev&pinRW != 0 {
		return true
	}
	n := prev >> 4
	if !f.fourBit {
		f.fourBit = n == 0x2
		return true
	}
	if !f.half {
		f.high = n
		f.half = true
		return true
	}
	f.half = false
	v := f.high<<4 | n
	if prev&pinRS != 0 {
		f.ddram[f.addr&0x7F] = v
		f.addr++
		return true
	}
	f.cmds = append(f.cmds, v)
	switch {
	case v == cmdClear:
		copy(f.ddram[:], bytes.Repeat([]byte{' '}, len(f.ddram)))
		f.addr = 0
	case v&0xFE == cmdHome:
		f.addr = 0
	case v&cmdDDRAM != 0:
		f.addr = v &^ cmdDDRAM
	case v&0xF0 == cmdShift:
		if v&0x04 != 0 {
			f.addr++
		} else {
			f.addr--
		}
	case v&0xF8 == cmdDisplay:
		f.on = v&0x04 != 0
	}
	return true
}

func (f *fakeLCD) Read() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy > 0 {
		f.busy--
		return 0x80 | f.port&0x0F
	}
	return f.port & 0x0F
}

func (f *fakeLCD) rows() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, Rows)
	for i, base := range rowBase {
		out[i] = string(f.ddram[base : base+Cols])
	}
	return out
}

func newDev(t *testing.T) (*Dev, *fakeLCD) {
	f := newFakeLCD()
	tgt := &twowiretest.Target{Devices: map[uint8]twowiretest.Device{0x27: f}}
	d, err := New(twowire.New(tgt, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, f
}

func blankRows() []string {
	return []string{strings.Repeat(" ", Cols), strings.Repeat(" ", Cols), strings.Repeat(" ", Cols), strings.Repeat(" ", Cols)}
}

func TestNew(t *testing.T) {
	d, f := newDev(t)
	if diff := cmp.Diff([]byte{0x28, 0x08, 0x01, 0x06, 0x0C}, f.cmds); diff != "" {
		t.Fatalf("init (-want +got):\n%s", diff)
	}
	if !f.on || !d.Lit() {
		t.Fatal("expected display on and lit")
	}
	if diff := cmp.Diff(blankRows(), d.Text()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if s := d.String(); s != "HD44780 20x4 on PCF8574@0x27" {
		t.Fatal(s)
	}
}

func TestReading(t *testing.T) {
	d, f := newDev(t)
	if _, err := d.WriteString("leftover"); err != nil {
		t.Fatal(err)
	}
	if err := d.Reading("Humidity", 24, 3, "%"); err != nil {
		t.Fatal(err)
	}
	want := blankRows()
	want[0] = "Humidity: 24.3%     "
	if diff := cmp.Diff(want, f.rows()); diff != "" {
		t.Fatalf("display (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, d.Text()); diff != "" {
		t.Fatalf("shadow (-want +got):\n%s", diff)
	}
}

func TestWrite_wrap(t *testing.T) {
	d, f := newDev(t)
	text := make([]byte, TextCells+2)
	for i := range text {
		text[i] = 'A' + byte(i%26)
	}
	if n, err := d.Write(text); n != len(text) || err != nil {
		t.Fatal(n, err)
	}
	want := []string{
		string(text[TextCells:]) + string(text[2:Cols]),
		string(text[Cols : 2*Cols]),
		string(text[2*Cols : 3*Cols]),
		string(text[3*Cols:TextCells]) + "       ",
	}
	if diff := cmp.Diff(want, f.rows()); diff != "" {
		t.Fatalf("display (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, d.Text()); diff != "" {
		t.Fatalf("shadow (-want +got):\n%s", diff)
	}
}

func TestWriteAt(t *testing.T) {
	d, f := newDev(t)
	if err := d.Reading("Temperature", 26, 3, "C"); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteAt(ClockAddr, "0:00:05"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WriteString("!"); err != nil {
		t.Fatal(err)
	}
	want := blankRows()
	want[0] = "Temperature: 26.3C! "
	want[3] = strings.Repeat(" ", 13) + "0:00:05"
	if diff := cmp.Diff(want, f.rows()); diff != "" {
		t.Fatalf("display (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, d.Text()); diff != "" {
		t.Fatalf("shadow (-want +got):\n%s", diff)
	}
}

func TestMoveTo(t *testing.T) {
	d, f := newDev(t)
	if err := d.MoveTo(3, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WriteString("ok"); err != nil {
		t.Fatal(err)
	}
	if got := f.rows()[2][4:6]; got != "ok" {
		t.Fatalf("%q", got)
	}
	for _, rc := range [][2]int{{0, 1}, {1, 0}, {5, 1}, {1, 21}} {
		if err := d.MoveTo(rc[0], rc[1]); err == nil {
			t.Fatalf("MoveTo(%d, %d) should fail", rc[0], rc[1])
		}
	}
	if err := d.Cursor(display.CursorBlink + 1); err == nil {
		t.Fatal("expected error")
	}
	if err := d.AutoScroll(true); !errors.Is(err, display.ErrNotImplemented) {
		t.Fatal(err)
	}
}

func TestTextDisplay(t *testing.T) {
	d, _ := newDev(t)
	for _, err := range displaytest.TestTextDisplay(d, false) {
		if !errors.Is(err, display.ErrNotImplemented) {
			t.Error(err)
		}
	}
}

func TestHalt(t *testing.T) {
	d, f := newDev(t)
	if _, err := d.WriteString("bye"); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if f.on || d.Lit() || f.port&pinBL != 0 {
		t.Fatal("expected display off and dark")
	}
	if diff := cmp.Diff(blankRows(), f.rows()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestWrite_playback(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			// Row 0.
			{Addr: 0x27, W: []byte{0x8C, 0x88, 0x0C, 0x08}},
			{Addr: 0x27, W: []byte{0xFE}, R: []byte{0x80}},
			{Addr: 0x27, W: []byte{0xFA, 0xFE, 0xFA}},
			{Addr: 0x27, W: []byte{0xFE}, R: []byte{0x00}},
			{Addr: 0x27, W: []byte{0xFA, 0xFE, 0xFA}},
			// 'H'
			{Addr: 0x27, W: []byte{0x4D, 0x49, 0x8D, 0x89}},
			{Addr: 0x27, W: []byte{0xFE}, R: []byte{0x80}},
			{Addr: 0x27, W: []byte{0xFA, 0xFE, 0xFA}},
			{Addr: 0x27, W: []byte{0xFE}, R: []byte{0x80}},
			{Addr: 0x27, W: []byte{0xFA, 0xFE, 0xFA}},
		},
	}
	d := &Dev{d: &i2c.Dev{Bus: &bus, Addr: 0x27}, busyPolls: 2, bl: pinBL}
	d.blank()
	n, err := d.WriteString("H")
	if !errors.Is(err, ErrBusy) || n != 0 {
		t.Fatal(n, err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConsole(t *testing.T) {
	d, _ := newDev(t)
	if err := d.Reading("Humidity", 24, 3, "%"); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	c := NewConsole(&buf, nil)
	if err := c.Render(d); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Humidity: 24.3%     ") {
		t.Fatalf("%q", buf.String())
	}
	if n := strings.Count(buf.String(), "\n"); n != Rows+2 {
		t.Fatalf("%d lines", n)
	}
	buf.Reset()
	if err := c.Render(d); err != nil || buf.Len() != 0 {
		t.Fatal("unchanged content should not be rendered again", err)
	}
	if err := d.Backlight(0); err != nil {
		t.Fatal(err)
	}
	if err := c.Render(d); err != nil || buf.Len() == 0 {
		t.Fatal("backlight change should be rendered", err)
	}
}
