// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// flags overrides the configuration file.
type flags struct {
	fs       *flag.FlagSet
	config   string
	shell    bool
	serial   string
	broker   string
	interval time.Duration
	logLevel string
	mirror   bool
}

func newFlags() *flags {
	f := &flags{fs: flag.NewFlagSet("envmon", flag.ContinueOnError)}
	f.fs.StringVar(&f.config, "config", "", "TOML configuration file")
	f.fs.BoolVar(&f.shell, "shell", false, "run the commands in a local interactive shell instead of the serial terminal")
	f.fs.StringVar(&f.serial, "serial", "", "serial device of the terminal; stdin/stdout when empty")
	f.fs.StringVar(&f.broker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	f.fs.DurationVar(&f.interval, "publish", 0, "publish a reading at this interval")
	f.fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	f.fs.BoolVar(&f.mirror, "mirror", false, "mirror the LCD on stderr")
	return f
}

// apply copies the flags set on the command line into cfg.
func (f *flags) apply(cfg *config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "serial":
			cfg.Serial = f.serial
		case "broker":
			cfg.Broker = f.broker
		case "publish":
			cfg.PublishInterval = f.interval
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "mirror":
			cfg.Mirror = f.mirror
		}
	})
}

// newLogger returns the console logger used by every component.
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "envmon").Logger()
	log.Logger = logger
	return logger, nil
}
