// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dht11_test

import (
	"errors"
	"fmt"
	"log"

	"github.com/GermanBionicSystems/envmon/dht11"
	"github.com/GermanBionicSystems/envmon/ticks"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	p := gpioreg.ByName("GPIO4")
	if p == nil {
		log.Fatal("failed to find GPIO4")
	}

	// The tick source measures the bit timings.
	src, err := ticks.New(nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := src.Start(); err != nil {
		log.Fatal(err)
	}
	defer src.Halt()

	d, err := dht11.New(p, src, nil)
	if err != nil {
		log.Fatalf("failed to initialize DHT11: %v", err)
	}
	f, err := d.Read()
	var cerr *dht11.ChecksumError
	if errors.As(err, &cerr) {
		log.Printf("ignoring corrupted frame %s", f)
		return
	} else if err != nil {
		log.Fatal(err)
	}
	fmt.Println(f)
}
