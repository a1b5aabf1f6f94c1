// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry publishes sensor readings to an MQTT broker as JSON.
//
// Readings go to "<prefix>/<client id>/reading". The client id defaults to
// an application specific hash of the machine id.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GermanBionicSystems/envmon/dht11"
	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// AppID salts the machine id used as default client id.
const AppID = "envmon"

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("telemetry: timed out")

// Reading is the published payload.
type Reading struct {
	Time time.Time `json:"time"`
	// Humidity is in %RH.
	Humidity float64 `json:"humidity"`
	// Temperature is in °C.
	Temperature float64 `json:"temperature"`
	Valid       bool    `json:"valid"`
	Raw         []int   `json:"raw"`
	Uptime      string  `json:"uptime,omitempty"`
}

// FromFrame converts a sensor frame.
func FromFrame(f dht11.Frame, t time.Time) Reading {
	return Reading{
		Time:        t.UTC(),
		Humidity:    f.Humidity(),
		Temperature: f.Temperature(),
		Valid:       f.Valid(),
		Raw:         []int{int(f.HumidityInt), int(f.HumidityFrac), int(f.TemperatureInt), int(f.TemperatureFrac), int(f.Checksum)},
	}
}

// Client is the subset of paho.Client used by Publisher.
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Opts holds the configuration options for a Publisher.
type Opts struct {
	// Broker is a URL like "tcp://localhost:1883".
	Broker   string
	Username string
	Password string
	// ClientID defaults to the protected machine id.
	ClientID string
	// Prefix is the first topic level. Default is "envmon".
	Prefix string
	QoS    byte
	// Timeout bounds Connect and every Publish. Default is 5s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Publisher sends Readings to a broker.
type Publisher struct {
	c       Client
	topic   string
	qos     byte
	timeout time.Duration
	log     zerolog.Logger
}

// New returns a Publisher for opts.Broker. It does not connect.
func New(opts *Opts) (*Publisher, error) {
	if opts == nil || opts.Broker == "" {
		return nil, errors.New("telemetry: no broker")
	}
	id := opts.ClientID
	if id == "" {
		var err error
		if id, err = machineid.ProtectedID(AppID); err != nil {
			return nil, fmt.Errorf("telemetry: client id: %w", err)
		}
		// The full hash is longer than some brokers accept.
		id = AppID + "-" + id[:12]
	}
	p := &Publisher{log: opts.Logger}
	co := paho.NewClientOptions()
	co.AddBroker(opts.Broker).
		SetClientID(id).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info().Str("broker", opts.Broker).Msg("mqtt connected")
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	p.init(paho.NewClient(co), id, opts)
	return p, nil
}

// NewWithClient returns a Publisher over an existing client. The Opts can
// be nil; Broker and the credentials are ignored.
func NewWithClient(c Client, clientID string, opts *Opts) *Publisher {
	if opts == nil {
		opts = &Opts{}
	}
	p := &Publisher{}
	p.init(c, clientID, opts)
	return p
}

func (p *Publisher) init(c Client, id string, opts *Opts) {
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix == "" {
		prefix = AppID
	}
	p.c = c
	p.topic = prefix + "/" + id + "/reading"
	p.qos = opts.QoS
	p.timeout = opts.Timeout
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	p.log = opts.Logger
}

func (p *Publisher) String() string {
	return "mqtt(" + p.topic + ")"
}

// Topic returns the topic readings are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// Connect connects to the broker.
func (p *Publisher) Connect() error {
	if err := wait(context.Background(), p.c.Connect(), p.timeout); err != nil {
		return fmt.Errorf("telemetry: connect: %w", err)
	}
	return nil
}

// Publish sends r. It fails immediately when not connected.
func (p *Publisher) Publish(ctx context.Context, r Reading) error {
	if !p.c.IsConnected() {
		return errors.New("telemetry: not connected")
	}
	b, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := wait(ctx, p.c.Publish(p.topic, p.qos, false, b), p.timeout); err != nil {
		return fmt.Errorf("telemetry: publish: %w", err)
	}
	p.log.Debug().Str("topic", p.topic).RawJSON("reading", b).Msg("published")
	return nil
}

// Close disconnects, leaving 250ms to flush pending messages.
func (p *Publisher) Close() error {
	p.c.Disconnect(250)
	return nil
}

// wait waits for t in steps so that ctx is honored.
func wait(ctx context.Context, t paho.Token, timeout time.Duration) error {
	const step = 50 * time.Millisecond
	for deadline := time.Now().Add(timeout); ; {
		if t.WaitTimeout(step) {
			return t.Error()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
	}
}
