// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rtc

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTick(t *testing.T) {
	var got []string
	c := New(&Opts{OnUpdate: func(s string) { got = append(got, s) }})
	if s := c.String(); s != "0:00:00" {
		t.Fatal(s)
	}
	for i := 0; i < 3599; i++ {
		c.Tick()
	}
	if s := c.String(); s != "0:59:59" {
		t.Fatal(s)
	}
	c.Tick()
	if s := c.String(); s != "1:00:00" {
		t.Fatal(s)
	}
	if len(got) != 3600 || got[0] != "0:00:01" || got[59] != "0:01:00" || got[3599] != "1:00:00" {
		t.Fatalf("%d updates", len(got))
	}
	if e := c.Elapsed(); e != time.Hour {
		t.Fatal(e)
	}
}

func TestReset(t *testing.T) {
	c := New(nil)
	for i := 0; i < 125; i++ {
		c.Tick()
	}
	if s := c.String(); s != "0:02:05" {
		t.Fatal(s)
	}
	c.Reset()
	if s := c.String(); s != "0:00:00" {
		t.Fatal(s)
	}
	c.Tick()
	if e := c.Elapsed(); e != time.Second {
		t.Fatal(e)
	}
}

func TestStartHalt(t *testing.T) {
	fc := clockwork.NewFakeClock()
	updates := make(chan string, 1)
	c := New(&Opts{Clock: fc, OnUpdate: func(s string) { updates <- s }})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
	fc.BlockUntil(1)
	for _, want := range []string{"0:00:01", "0:00:02", "0:00:03"} {
		fc.Advance(time.Second)
		select {
		case s := <-updates:
			if s != want {
				t.Fatalf("%q != %q", s, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no update")
		}
	}
	if err := c.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := c.Halt(); err != nil {
		t.Fatal(err)
	}
	fc.Advance(time.Second)
	if s := c.String(); s != "0:00:03" {
		t.Fatal(s)
	}
}
