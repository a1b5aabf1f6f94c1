// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dht11 reads a DHT11 temperature and humidity sensor over its
// single-wire protocol.
//
// The host pulls the line low for 18ms and releases it. The sensor answers
// with a low and a high pulse of 80µs each, then sends 40 bits MSB first.
// Every bit starts with a 50µs low pulse followed by a high pulse of about
// 27µs for a 0 or 70µs for a 1. The driver samples the line a fixed window
// after each rising edge. Interval measurement uses a ticks.Source and every
// edge wait is bounded.
//
// The frame holds integral and fractional humidity, integral and fractional
// temperature, and a checksum equal to the sum of the four data bytes.
//
// **Datasheet:** https://www.mouser.com/datasheet/2/758/DHT11-Technical-Data-Sheet-Translated-Version-1143054.pdf
package dht11
