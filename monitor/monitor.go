// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitor implements the commands of the environment monitor on
// top of the sensor, the display and the clock.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/GermanBionicSystems/envmon/dht11"
	"github.com/GermanBionicSystems/envmon/lcd"
	"github.com/GermanBionicSystems/envmon/telemetry"
	"github.com/GermanBionicSystems/envmon/terminal"
	"github.com/rs/zerolog"
)

// Sensor is implemented by *dht11.Dev.
type Sensor interface {
	Read() (dht11.Frame, error)
}

// Display is implemented by *lcd.Dev.
type Display interface {
	io.Writer
	Clear() error
	Reading(label string, integral, frac uint8, unit string) error
	WriteAt(addr byte, text string) error
}

// Clock is implemented by *rtc.Clock.
type Clock interface {
	Reset()
	String() string
}

// BusStats is implemented by *twowire.Master.
type BusStats interface {
	Recoveries() uint32
	LockDetect() int
}

// LinkStats is implemented by *serial.Transport.
type LinkStats interface {
	Dropped() uint32
}

// Publisher is implemented by *telemetry.Publisher.
type Publisher interface {
	Publish(ctx context.Context, r telemetry.Reading) error
}

// Config wires a Monitor. Sensor and Display are required.
type Config struct {
	Sensor    Sensor
	Display   Display
	Clock     Clock
	Bus       BusStats
	Link      LinkStats
	Publisher Publisher
	Logger    zerolog.Logger
	// Refresh is called after the display content changed.
	Refresh func()
	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor runs the commands.
type Monitor struct {
	cfg Config

	mu       sync.Mutex
	last     dht11.Frame
	haveLast bool
	reads    uint32
	invalid  uint32
	failed   uint32
}

// New returns a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Sensor == nil || cfg.Display == nil {
		return nil, errors.New("monitor: a sensor and a display are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{cfg: cfg}, nil
}

// Commands returns ECHO, HUMIDITY, TEMP, RESET and STATUS.
func (m *Monitor) Commands() []terminal.Command {
	return []terminal.Command{
		&terminal.Func{N: "ECHO", H: "Echoes the same string back in upper case but removes any whitespaces.", F: m.echo},
		&terminal.Func{N: "HUMIDITY", H: "Displays the humidity.", F: m.humidity},
		&terminal.Func{N: "TEMP", H: "Displays the temperature.", F: m.temperature},
		&terminal.Func{N: "RESET", H: "Resets the clock.", F: m.reset},
		&terminal.Func{N: "STATUS", H: "Reports bus, link and sensor health.", F: m.status},
	}
}

// Table returns a command table holding Commands and HELP.
func (m *Monitor) Table() (*terminal.Table, error) {
	return terminal.NewTable(m.Commands()...)
}

// Measure reads the sensor and publishes the result when a Publisher is
// configured. A frame with a bad checksum is returned along with its
// *dht11.ChecksumError.
func (m *Monitor) Measure(ctx context.Context) (dht11.Frame, error) {
	f, err := m.cfg.Sensor.Read()
	var ce *dht11.ChecksumError
	m.mu.Lock()
	m.reads++
	switch {
	case err == nil:
		m.last, m.haveLast = f, true
	case errors.As(err, &ce):
		m.invalid++
	default:
		m.failed++
	}
	m.mu.Unlock()
	if err != nil {
		if ce != nil {
			m.cfg.Logger.Warn().Err(err).Stringer("frame", f).Msg("invalid sensor frame")
		} else {
			m.cfg.Logger.Warn().Err(err).Msg("sensor read failed")
			return f, err
		}
	} else {
		m.cfg.Logger.Debug().Stringer("frame", f).Msg("sensor read")
	}
	if m.cfg.Publisher != nil {
		r := telemetry.FromFrame(f, m.cfg.Now())
		if m.cfg.Clock != nil {
			r.Uptime = m.cfg.Clock.String()
		}
		if perr := m.cfg.Publisher.Publish(ctx, r); perr != nil {
			m.cfg.Logger.Error().Err(perr).Msg("publish failed")
		}
	}
	return f, err
}

// Run measures every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("monitor: interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = m.Measure(ctx)
		}
	}
}

// OnRecover logs a bus lock recovery. It runs inside the bus transaction
// and must not use the bus.
func (m *Monitor) OnRecover(lockDetect int) {
	m.cfg.Logger.Warn().Int("lock_detect", lockDetect).Msg("bus locked, recovered")
}

// ClockUpdate shows now in the clock field of the display.
func (m *Monitor) ClockUpdate(now string) {
	if err := m.cfg.Display.WriteAt(lcd.ClockAddr, now); err != nil {
		m.cfg.Logger.Debug().Err(err).Msg("clock update")
		return
	}
	m.refresh()
}

// Last returns the last valid frame.
func (m *Monitor) Last() (dht11.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.haveLast
}

//

func (m *Monitor) echo(w io.Writer, args []string) error {
	defer m.refresh()
	if err := m.cfg.Display.Clear(); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := io.WriteString(m.cfg.Display, strings.ToUpper(a)+" "); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) humidity(w io.Writer, args []string) error {
	return m.show(w, "Humidity", "%", func(f dht11.Frame) (uint8, uint8) {
		return f.HumidityInt, f.HumidityFrac
	})
}

func (m *Monitor) temperature(w io.Writer, args []string) error {
	return m.show(w, "Temperature", "C", func(f dht11.Frame) (uint8, uint8) {
		return f.TemperatureInt, f.TemperatureFrac
	})
}

func (m *Monitor) show(w io.Writer, label, unit string, pick func(dht11.Frame) (uint8, uint8)) error {
	f, err := m.Measure(context.Background())
	var ce *dht11.ChecksumError
	if err != nil && !errors.As(err, &ce) {
		_, _ = fmt.Fprintf(w, "\n\rSensor error: %v", err)
		return err
	}
	i, frac := pick(f)
	err = m.cfg.Display.Reading(label, i, frac, unit)
	m.refresh()
	if ce != nil {
		_, _ = io.WriteString(w, "\n\rInvalid reading: checksum mismatch")
	}
	return err
}

func (m *Monitor) reset(w io.Writer, args []string) error {
	if m.cfg.Clock == nil {
		return errors.New("monitor: no clock")
	}
	m.cfg.Clock.Reset()
	m.cfg.Logger.Info().Msg("clock reset")
	return nil
}

func (m *Monitor) status(w io.Writer, args []string) error {
	var b strings.Builder
	if m.cfg.Clock != nil {
		fmt.Fprintf(&b, "\n\rUptime: %s", m.cfg.Clock)
	}
	if m.cfg.Bus != nil {
		fmt.Fprintf(&b, "\n\rBus recoveries: %d (lock detect %d)", m.cfg.Bus.Recoveries(), m.cfg.Bus.LockDetect())
	}
	if m.cfg.Link != nil {
		fmt.Fprintf(&b, "\n\rDropped bytes: %d", m.cfg.Link.Dropped())
	}
	m.mu.Lock()
	fmt.Fprintf(&b, "\n\rReadings: %d (%d invalid, %d failed)", m.reads, m.invalid, m.failed)
	if m.haveLast {
		fmt.Fprintf(&b, "\n\rLast reading: %s", m.last)
	}
	m.mu.Unlock()
	_, err := io.WriteString(w, b.String())
	return err
}

func (m *Monitor) refresh() {
	if m.cfg.Refresh != nil {
		m.cfg.Refresh()
	}
}
