// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/GermanBionicSystems/envmon/dht11"
	"github.com/GermanBionicSystems/envmon/lcd"
	"github.com/GermanBionicSystems/envmon/ringbuf"
	"periph.io/x/conn/v3/physic"
)

// config is the resolved configuration.
type config struct {
	SensorPin string
	// Bus is "bitbang" to drive SCLPin and SDAPin with the two-wire master,
	// or "kernel" to open I2CBus from the host registry.
	Bus      string
	SCLPin   string
	SDAPin   string
	I2CBus   string
	BusSpeed physic.Frequency
	LCDAddr  uint16

	// Serial is a device path. Empty means stdin and stdout.
	Serial    string
	Baud      int
	BufferCap int

	TickPeriod time.Duration
	Sensor     dht11.Opts

	Broker          string
	Prefix          string
	ClientID        string
	PublishInterval time.Duration

	LogLevel string
	Mirror   bool
}

func defaultConfig() config {
	return config{
		SensorPin:  "GPIO4",
		Bus:        "bitbang",
		SCLPin:     "GPIO3",
		SDAPin:     "GPIO2",
		BusSpeed:   100 * physic.KiloHertz,
		LCDAddr:    lcd.DefaultAddress,
		Baud:       115200,
		BufferCap:  ringbuf.DefaultCapacity,
		TickPeriod: 5 * time.Microsecond,
		Sensor:     dht11.DefaultOpts,
		Prefix:     "envmon",
		LogLevel:   "info",
	}
}

type fileConfig struct {
	SensorPin       string `toml:"sensor_pin"`
	Bus             string `toml:"bus"`
	SCLPin          string `toml:"scl_pin"`
	SDAPin          string `toml:"sda_pin"`
	I2CBus          string `toml:"i2c_bus"`
	BusSpeedHz      int64  `toml:"bus_speed_hz"`
	LCDAddr         int64  `toml:"lcd_addr"`
	Serial          string `toml:"serial"`
	Baud            int    `toml:"baud"`
	BufferCap       int    `toml:"buffer_capacity"`
	TickPeriod      string `toml:"tick_period"`
	StartHold       string `toml:"sensor_start_hold"`
	Settle          string `toml:"sensor_settle"`
	BitWindow       string `toml:"sensor_bit_window"`
	EdgeTimeout     string `toml:"sensor_edge_timeout"`
	Broker          string `toml:"mqtt_broker"`
	Prefix          string `toml:"mqtt_prefix"`
	ClientID        string `toml:"mqtt_client_id"`
	PublishInterval string `toml:"publish_interval"`
	LogLevel        string `toml:"log_level"`
	Mirror          bool   `toml:"mirror"`
}

// loadConfig overlays the keys defined in the TOML file at path onto the
// defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load envmon config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		return config{}, fmt.Errorf("load envmon config: unknown key %q", undecoded[0].String())
	}

	str := func(key string, dst *string, v string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	str("sensor_pin", &cfg.SensorPin, raw.SensorPin)
	str("bus", &cfg.Bus, raw.Bus)
	str("scl_pin", &cfg.SCLPin, raw.SCLPin)
	str("sda_pin", &cfg.SDAPin, raw.SDAPin)
	str("i2c_bus", &cfg.I2CBus, raw.I2CBus)
	str("serial", &cfg.Serial, raw.Serial)
	str("mqtt_broker", &cfg.Broker, raw.Broker)
	str("mqtt_prefix", &cfg.Prefix, raw.Prefix)
	str("mqtt_client_id", &cfg.ClientID, raw.ClientID)
	str("log_level", &cfg.LogLevel, raw.LogLevel)

	if meta.IsDefined("bus_speed_hz") {
		cfg.BusSpeed = physic.Frequency(raw.BusSpeedHz) * physic.Hertz
	}
	if meta.IsDefined("lcd_addr") {
		if raw.LCDAddr <= 0 || raw.LCDAddr > 0x7F {
			return config{}, fmt.Errorf("lcd_addr %#x is not a 7-bit address", raw.LCDAddr)
		}
		cfg.LCDAddr = uint16(raw.LCDAddr)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("buffer_capacity") {
		cfg.BufferCap = raw.BufferCap
	}
	if meta.IsDefined("mirror") {
		cfg.Mirror = raw.Mirror
	}

	durations := []struct {
		key string
		dst *time.Duration
		v   string
	}{
		{"tick_period", &cfg.TickPeriod, raw.TickPeriod},
		{"sensor_start_hold", &cfg.Sensor.StartHold, raw.StartHold},
		{"sensor_settle", &cfg.Sensor.Settle, raw.Settle},
		{"sensor_bit_window", &cfg.Sensor.BitWindow, raw.BitWindow},
		{"sensor_edge_timeout", &cfg.Sensor.EdgeTimeout, raw.EdgeTimeout},
		{"publish_interval", &cfg.PublishInterval, raw.PublishInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.v))
		if err != nil {
			return config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	switch c.Bus {
	case "bitbang", "kernel":
	default:
		return fmt.Errorf("bus must be bitbang or kernel, got %q", c.Bus)
	}
	if c.BufferCap < 1 || c.BufferCap > 65535 {
		return fmt.Errorf("buffer_capacity %d out of range", c.BufferCap)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick_period must be positive")
	}
	if c.PublishInterval < 0 {
		return fmt.Errorf("publish_interval must not be negative")
	}
	return nil
}
