// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/envmon/ticks"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Phases reported in TimeoutError.
const (
	PhaseResponse = "response"
	PhaseBitStart = "bit start"
	PhaseBitEnd   = "bit end"
)

// Frame is one measurement as sent by the sensor.
//
// The fractional bytes are tenths of a unit, 0 to 9 on a DHT11. Env,
// Humidity, Temperature and String all read them that way.
type Frame struct {
	HumidityInt     uint8
	HumidityFrac    uint8
	TemperatureInt  uint8
	TemperatureFrac uint8
	Checksum        uint8
}

// Decode folds 40 bits, MSB first, into a Frame.
func Decode(bits [40]bool) Frame {
	var b [5]uint8
	for i, bit := range bits {
		b[i/8] <<= 1
		if bit {
			b[i/8] |= 1
		}
	}
	return Frame{b[0], b[1], b[2], b[3], b[4]}
}

// Sum returns the sum of the four data bytes modulo 256.
func (f Frame) Sum() uint8 {
	return f.HumidityInt + f.HumidityFrac + f.TemperatureInt + f.TemperatureFrac
}

// Valid reports whether the checksum matches.
func (f Frame) Valid() bool {
	return f.Sum() == f.Checksum
}

// Humidity returns the relative humidity in %.
func (f Frame) Humidity() float64 {
	return float64(f.HumidityInt) + float64(f.HumidityFrac)/10
}

// Temperature returns the temperature in °C.
func (f Frame) Temperature() float64 {
	return float64(f.TemperatureInt) + float64(f.TemperatureFrac)/10
}

// Env stores the temperature and humidity in e.
func (f Frame) Env(e *physic.Env) {
	e.Temperature = physic.ZeroCelsius + physic.Temperature(f.TemperatureInt)*physic.Kelvin + physic.Temperature(f.TemperatureFrac)*100*physic.MilliKelvin
	e.Humidity = physic.RelativeHumidity(f.HumidityInt)*physic.PercentRH + physic.RelativeHumidity(f.HumidityFrac)*physic.MilliRH
	e.Pressure = 0
}

func (f Frame) String() string {
	return fmt.Sprintf("%d.%d%%RH %d.%d°C", f.HumidityInt, f.HumidityFrac, f.TemperatureInt, f.TemperatureFrac)
}

// Opts holds the configuration options for the device.
type Opts struct {
	// StartHold is how long the line is held low to request a measurement.
	StartHold time.Duration
	// Settle is the delay between releasing the line and waiting for the
	// sensor response.
	Settle time.Duration
	// BitWindow is the delay between the rising edge of a bit and its
	// sampling. A high level at that point is a 1.
	BitWindow time.Duration
	// EdgeTimeout bounds every wait for a level change.
	EdgeTimeout time.Duration
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	StartHold:   18 * time.Millisecond,
	Settle:      140 * time.Microsecond,
	BitWindow:   42 * time.Microsecond,
	EdgeTimeout: 200 * time.Microsecond,
}

// Dev is a DHT11 on a GPIO line.
type Dev struct {
	p   gpio.PinIO
	src *ticks.Source

	hold, settle, window, timeout ticks.Ticks

	mu   sync.Mutex // serializes reads
	last Frame
	read bool

	stopMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New returns a Dev reading the sensor on p, measuring intervals with src.
//
// The Opts can be nil. It fails if the tick period is too coarse to resolve
// the bit window.
func New(p gpio.PinIO, src *ticks.Source, opts *Opts) (*Dev, error) {
	if p == nil || src == nil {
		return nil, errors.New("dht11: pin and tick source are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.StartHold <= 0 {
		o.StartHold = DefaultOpts.StartHold
	}
	if o.Settle <= 0 {
		o.Settle = DefaultOpts.Settle
	}
	if o.BitWindow <= 0 {
		o.BitWindow = DefaultOpts.BitWindow
	}
	if o.EdgeTimeout <= 0 {
		o.EdgeTimeout = DefaultOpts.EdgeTimeout
	}
	if 3*src.Period() > o.BitWindow {
		return nil, fmt.Errorf("dht11: tick period %s cannot resolve a %s bit window", src.Period(), o.BitWindow)
	}
	d := &Dev{
		p:       p,
		src:     src,
		hold:    src.Ticks(o.StartHold),
		settle:  src.Ticks(o.Settle),
		window:  src.Ticks(o.BitWindow),
		timeout: src.Ticks(o.EdgeTimeout),
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("dht11: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return "DHT11{" + d.p.String() + "}"
}

// Read runs one measurement.
//
// On a checksum mismatch it returns the received frame along with a
// *ChecksumError. It returns a *TimeoutError if the sensor stops answering.
func (d *Dev) Read() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.p.Out(gpio.Low); err != nil {
		return Frame{}, fmt.Errorf("dht11: %w", err)
	}
	d.src.Delay(d.hold)
	if err := d.p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return Frame{}, fmt.Errorf("dht11: %w", err)
	}
	d.src.Delay(d.settle)
	if !d.waitLevel(gpio.Low) {
		return Frame{}, &TimeoutError{Phase: PhaseResponse, Bit: -1}
	}
	var bits [40]bool
	for i := range bits {
		if !d.waitLevel(gpio.High) {
			return Frame{}, &TimeoutError{Phase: PhaseBitStart, Bit: i}
		}
		d.src.Delay(d.window)
		bits[i] = d.p.Read() == gpio.High
		if !d.waitLevel(gpio.Low) {
			return Frame{}, &TimeoutError{Phase: PhaseBitEnd, Bit: i}
		}
	}
	f := Decode(bits)
	d.last = f
	d.read = true
	if !f.Valid() {
		return f, &ChecksumError{Frame: f}
	}
	return f, nil
}

// Last returns the frame of the last completed read, valid or not.
func (d *Dev) Last() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.read
}

// Sense implements physic.SenseEnv. Pressure is always 0.
func (d *Dev) Sense(e *physic.Env) error {
	f, err := d.Read()
	if err != nil {
		return err
	}
	f.Env(e)
	return nil
}

// SenseContinuous implements physic.SenseEnv. The sensor supports at most one
// measurement per second. Failed measurements are skipped. Call Halt to stop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < time.Second {
		return nil, errors.New("dht11: interval must be at least 1s")
	}
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if d.stop != nil {
		return nil, errors.New("dht11: already sensing continuously")
	}
	stop := make(chan struct{})
	d.stop = stop
	c := make(chan physic.Env)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(c)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				var e physic.Env
				if err := d.Sense(&e); err != nil {
					continue
				}
				select {
				case c <- e:
				case <-stop:
					return
				}
			}
		}
	}()
	return c, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin
	e.Humidity = physic.PercentRH
	e.Pressure = 0
}

// Halt stops the measurements started by SenseContinuous.
func (d *Dev) Halt() error {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
	return nil
}

func (d *Dev) waitLevel(l gpio.Level) bool {
	return d.src.WaitFor(func() bool { return d.p.Read() == l }, d.timeout)
}

var _ physic.SenseEnv = &Dev{}
