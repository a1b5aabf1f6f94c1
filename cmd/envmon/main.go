// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// envmon runs the environment monitor: a DHT11 sensor, a 20x4 LCD on a
// two-wire bus, an elapsed time clock and a command terminal on a serial
// line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/GermanBionicSystems/envmon/dht11"
	"github.com/GermanBionicSystems/envmon/lcd"
	"github.com/GermanBionicSystems/envmon/monitor"
	"github.com/GermanBionicSystems/envmon/ringbuf"
	"github.com/GermanBionicSystems/envmon/rtc"
	"github.com/GermanBionicSystems/envmon/serial"
	"github.com/GermanBionicSystems/envmon/telemetry"
	"github.com/GermanBionicSystems/envmon/terminal"
	"github.com/GermanBionicSystems/envmon/ticks"
	"github.com/GermanBionicSystems/envmon/twowire"
	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	tarm "github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	f := newFlags()
	if err := f.fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	cfg := defaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = loadConfig(f.config); err != nil {
			fmt.Fprintf(os.Stderr, "envmon: %v\n", err)
			os.Exit(1)
		}
	}
	f.apply(&cfg)
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "envmon: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := mainImpl(ctx, &cfg, f.shell, logger); err != nil {
		logger.Fatal().Err(err).Msg("envmon stopped")
	}
}

func mainImpl(ctx context.Context, cfg *config, shell bool, logger zerolog.Logger) error {
	if _, err := host.Init(); err != nil {
		return err
	}

	src, err := ticks.New(&ticks.Opts{Period: cfg.TickPeriod})
	if err != nil {
		return err
	}
	if err := src.Start(); err != nil {
		return err
	}
	defer src.Halt()

	// The monitor logs bus recoveries; it is created once every device is
	// up.
	var mon *monitor.Monitor
	bus, stats, err := openBus(cfg, func(n int) {
		if mon != nil {
			mon.OnRecover(n)
		}
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	display, err := lcd.New(bus, &lcd.Opts{Addr: cfg.LCDAddr})
	if err != nil {
		return err
	}
	defer display.Halt()

	pin := gpioreg.ByName(cfg.SensorPin)
	if pin == nil {
		return fmt.Errorf("no pin %q", cfg.SensorPin)
	}
	sensor, err := dht11.New(pin, src, &cfg.Sensor)
	if err != nil {
		return err
	}
	defer sensor.Halt()

	var refresh func()
	if cfg.Mirror {
		console := lcd.NewConsole(colorable.NewColorableStderr(), nil)
		defer console.Halt()
		refresh = func() { _ = console.Render(display) }
	}

	var pub monitor.Publisher
	if cfg.Broker != "" {
		p, err := telemetry.New(&telemetry.Opts{
			Broker:   cfg.Broker,
			ClientID: cfg.ClientID,
			Prefix:   cfg.Prefix,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := p.Connect(); err != nil {
			return err
		}
		defer p.Close()
		logger.Info().Str("topic", p.Topic()).Msg("publishing readings")
		pub = p
	}

	clock := rtc.New(&rtc.Opts{OnUpdate: func(now string) {
		if mon != nil {
			mon.ClockUpdate(now)
		}
	}})
	mc := monitor.Config{
		Sensor:    sensor,
		Display:   display,
		Clock:     clock,
		Bus:       stats,
		Publisher: pub,
		Logger:    logger,
		Refresh:   refresh,
	}

	if shell {
		if mon, err = monitor.New(mc); err != nil {
			return err
		}
		if err := clock.Start(); err != nil {
			return err
		}
		defer clock.Halt()
		startPublishing(ctx, cfg, mon, logger)
		table, err := mon.Table()
		if err != nil {
			return err
		}
		return runShell(ctx, table)
	}

	rw, name, err := openLine(cfg)
	if err != nil {
		return err
	}
	if c, ok := rw.(io.Closer); ok {
		defer c.Close()
	}
	line := serial.NewLine(rw, name)
	rx, err := ringbuf.New(cfg.BufferCap)
	if err != nil {
		return err
	}
	tx, err := ringbuf.New(cfg.BufferCap)
	if err != nil {
		return err
	}
	tr, err := serial.New(line, rx, tx, nil)
	if err != nil {
		return err
	}
	defer tr.Halt()
	mc.Link = tr
	if mon, err = monitor.New(mc); err != nil {
		return err
	}
	if err := clock.Start(); err != nil {
		return err
	}
	defer clock.Halt()
	startPublishing(ctx, cfg, mon, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- line.Serve(ctx, tr.HandleInterrupt)
		cancel()
	}()
	table, err := mon.Table()
	if err != nil {
		return err
	}
	term := terminal.New(tr, tr, table, &terminal.Opts{
		Banner:  terminal.Banner,
		Prompt:  terminal.Prompt,
		MaxLine: terminal.MaxLine,
		OnError: func(l string, err error) {
			logger.Debug().Err(err).Str("line", l).Msg("command failed")
		},
	})
	logger.Info().Stringer("line", tr).Stringer("bus", bus).Msg("monitor ready")
	err = term.Run(ctx)
	cancel()
	if serr := <-served; serr != nil && !errors.Is(serr, context.Canceled) {
		return serr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openBus returns the bus of the display. The two-wire master reports its
// recoveries through stats.
func openBus(cfg *config, onRecover func(int)) (i2c.BusCloser, monitor.BusStats, error) {
	if cfg.Bus == "kernel" {
		b, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, nil, err
		}
		if err := b.SetSpeed(cfg.BusSpeed); err != nil {
			b.Close()
			return nil, nil, err
		}
		return b, nil, nil
	}
	scl := gpioreg.ByName(cfg.SCLPin)
	sda := gpioreg.ByName(cfg.SDAPin)
	if scl == nil || sda == nil {
		return nil, nil, fmt.Errorf("no pins %q and %q for the two-wire bus", cfg.SCLPin, cfg.SDAPin)
	}
	bb, err := twowire.NewBitbang(scl, sda, cfg.BusSpeed)
	if err != nil {
		return nil, nil, err
	}
	m := twowire.New(bb, &twowire.Opts{OnRecover: onRecover})
	return m, m, nil
}

// openLine opens the serial device of the terminal, or the standard streams.
func openLine(cfg *config) (io.ReadWriter, string, error) {
	if cfg.Serial == "" {
		return struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "stdio", nil
	}
	p, err := tarm.OpenPort(&tarm.Config{Name: cfg.Serial, Baud: cfg.Baud})
	if err != nil {
		return nil, "", err
	}
	return p, cfg.Serial + "@" + strconv.Itoa(cfg.Baud), nil
}

func startPublishing(ctx context.Context, cfg *config, mon *monitor.Monitor, logger zerolog.Logger) {
	if cfg.PublishInterval <= 0 {
		return
	}
	go func() {
		if err := mon.Run(ctx, cfg.PublishInterval); err != nil {
			logger.Error().Err(err).Msg("publishing stopped")
		}
	}()
}
