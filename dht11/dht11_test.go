// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GermanBionicSystems/envmon/ticks"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// sensorPin plays the DHT11 waveform, timed in ticks since the line was
// released.
type sensorPin struct {
	gpiotest.Pin
	src  *ticks.Source
	bits [40]bool
	// silentAfter, if >= 0, is the bit after which the sensor holds the line
	// high forever.
	silentAfter int
	// mute makes the sensor never answer.
	mute bool

	mu       sync.Mutex
	released bool
	at       ticks.Ticks
}

func (p *sensorPin) In(gpio.Pull, gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.at = p.src.Now()
	return nil
}

func (p *sensorPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = bool(l)
	return nil
}

func (p *sensorPin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		return gpio.Low
	}
	if p.mute {
		return gpio.High
	}
	return p.level(int(p.src.Now() - p.at))
}

func (p *sensorPin) level(t int) gpio.Level {
	phases := []struct {
		l gpio.Level
		d int
	}{
		{gpio.High, 30}, {gpio.Low, 80}, {gpio.High, 80},
	}
	for _, ph := range phases {
		if t < ph.d {
			return ph.l
		}
		t -= ph.d
	}
	for i, b := range p.bits {
		if i == p.silentAfter {
			return gpio.High
		}
		if t < 50 {
			return gpio.Low
		}
		t -= 50
		h := 27
		if b {
			h = 70
		}
		if t < h {
			return gpio.High
		}
		t -= h
	}
	if t < 50 {
		return gpio.Low
	}
	return gpio.High
}

func frameBits(b ...byte) [40]bool {
	var bits [40]bool
	for i := range bits {
		bits[i] = b[i/8]&(0x80>>uint(i%8)) != 0
	}
	return bits
}

// newSim returns a Source advanced by one tick per busy-wait iteration.
func newSim(t *testing.T, period time.Duration) *ticks.Source {
	var s *ticks.Source
	s, err := ticks.New(&ticks.Opts{Period: period, Idle: func() { s.Tick() }})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newDev(t *testing.T, data ...byte) (*Dev, *sensorPin) {
	src := newSim(t, time.Microsecond)
	p := &sensorPin{Pin: gpiotest.Pin{N: "GPIO4"}, src: src, bits: frameBits(data...), silentAfter: -1}
	d, err := New(p, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, p
}

func TestFrame(t *testing.T) {
	f := Frame{24, 0, 26, 3, 53}
	if !f.Valid() || f.Sum() != 53 {
		t.Fatalf("%v sum %d", f, f.Sum())
	}
	f.Checksum = 54
	if f.Valid() {
		t.Fatal("checksum 54 accepted")
	}
	// The sum wraps.
	if f := (Frame{200, 100, 0, 0, 44}); !f.Valid() {
		t.Fatal("wrapped sum rejected")
	}
	e := physic.Env{}
	Frame{24, 5, 26, 3, 58}.Env(&e)
	if expected := 24*physic.PercentRH + 5*physic.MilliRH; e.Humidity != expected {
		t.Fatalf("humidity %s != %s", e.Humidity, expected)
	}
	if expected := physic.ZeroCelsius + 26*physic.Kelvin + 300*physic.MilliKelvin; e.Temperature != expected {
		t.Fatalf("temperature %s != %s", e.Temperature, expected)
	}
	// Every rendering reads the fractional bytes as tenths.
	g := Frame{24, 5, 26, 3, 58}
	if h, c := g.Humidity(), g.Temperature(); math.Abs(h-24.5) > 1e-9 || math.Abs(c-26.3) > 1e-9 {
		t.Fatalf("%g %g", h, c)
	}
	if s := g.String(); s != "24.5%RH 26.3°C" {
		t.Fatal(s)
	}
}

func TestDecode(t *testing.T) {
	want := Frame{0x18, 0x00, 0x1A, 0x03, 0x35}
	if diff := cmp.Diff(want, Decode(frameBits(0x18, 0x00, 0x1A, 0x03, 0x35))); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	var bits [40]bool
	bits[0], bits[39] = true, true
	if diff := cmp.Diff(Frame{HumidityInt: 0x80, Checksum: 0x01}, Decode(bits)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("nil pin accepted")
	}
	coarse := newSim(t, 20*time.Microsecond)
	if _, err := New(&gpiotest.Pin{}, coarse, nil); err == nil {
		t.Fatal("20µs tick accepted for a 42µs window")
	}
	// The firmware runs with a 14µs tick.
	if _, err := New(&gpiotest.Pin{}, newSim(t, 14*time.Microsecond), nil); err != nil {
		t.Fatal(err)
	}
	d, _ := newDev(t, 0, 0, 0, 0, 0)
	if d.String() != "DHT11{GPIO4(0)}" {
		t.Fatal(d.String())
	}
}

func TestRead(t *testing.T) {
	d, _ := newDev(t, 24, 0, 26, 3, 53)
	f, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Frame{24, 0, 26, 3, 53}, f); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if last, ok := d.Last(); !ok || last != f {
		t.Fatal("last frame not kept")
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		t.Fatal(err)
	}
	if e.Humidity != 24*physic.PercentRH {
		t.Fatal(e.Humidity)
	}
}

func TestRead_checksum(t *testing.T) {
	d, _ := newDev(t, 24, 0, 26, 3, 54)
	f, err := d.Read()
	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	if cerr.Frame != f || f.HumidityInt != 24 || f.TemperatureInt != 26 {
		t.Fatalf("frame not populated: %v", f)
	}
	if last, _ := d.Last(); last.Checksum != 54 {
		t.Fatal("invalid frame not kept")
	}
	if err := d.Sense(&physic.Env{}); !errors.As(err, &cerr) {
		t.Fatal(err)
	}
}

func TestRead_timeout(t *testing.T) {
	d, p := newDev(t, 24, 0, 26, 3, 53)
	p.mute = true
	_, err := d.Read()
	var terr *TimeoutError
	if !errors.As(err, &terr) || terr.Phase != PhaseResponse || terr.Bit != -1 {
		t.Fatalf("%v", err)
	}
	if _, ok := d.Last(); ok {
		t.Fatal("timed out read recorded")
	}

	d, p = newDev(t, 0xFF, 0xFF, 0, 0, 0xFE)
	p.silentAfter = 10
	_, err = d.Read()
	if !errors.As(err, &terr) || terr.Phase != PhaseBitEnd || terr.Bit != 9 {
		t.Fatalf("%v", err)
	}
	if err.Error() != "dht11: timeout waiting for bit end of bit 9" {
		t.Fatal(err)
	}
}

func TestPrecision(t *testing.T) {
	d, _ := newDev(t, 0, 0, 0, 0, 0)
	e := physic.Env{}
	d.Precision(&e)
	if e.Temperature != physic.Kelvin || e.Humidity != physic.PercentRH {
		t.Fatal(e)
	}
	if _, err := d.SenseContinuous(time.Millisecond); err == nil {
		t.Fatal("fast interval accepted")
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}
