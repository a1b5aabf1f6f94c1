// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lcd

import (
	"bytes"
	"image/color"
	"io"
	"strings"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

var (
	litColor  = color.NRGBA{0x9A, 0xCD, 0x32, 0xFF}
	darkColor = color.NRGBA{0x30, 0x30, 0x30, 0xFF}
)

// Console mirrors the text of a Dev on a terminal, framed by a bezel
// colored after the backlight.
type Console struct {
	w       io.Writer
	palette ansi256.Palette
	buf     bytes.Buffer
	last    string
}

// NewConsole returns a Console writing to w. When w is nil, it writes to
// stdout. The palette can be nil.
func NewConsole(w io.Writer, p *ansi256.Palette) *Console {
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	if p == nil {
		p = ansi256.Default
	}
	return &Console{w: w, palette: *p}
}

func (c *Console) String() string {
	return "lcd.Console"
}

// Render draws the current content of d. Nothing is written when the
// content did not change since the last call.
func (c *Console) Render(d *Dev) error {
	bezel := darkColor
	if d.Lit() {
		bezel = litColor
	}
	edge := c.palette.Block(bezel)
	c.buf.Reset()
	_, _ = c.buf.WriteString(strings.Repeat(edge, Cols+2))
	_, _ = c.buf.WriteString("\033[0m\n")
	for _, row := range d.Text() {
		_, _ = c.buf.WriteString(edge)
		_, _ = c.buf.WriteString("\033[0m")
		_, _ = c.buf.WriteString(row)
		_, _ = c.buf.WriteString(edge)
		_, _ = c.buf.WriteString("\033[0m\n")
	}
	_, _ = c.buf.WriteString(strings.Repeat(edge, Cols+2))
	_, _ = c.buf.WriteString("\033[0m\n")
	if c.buf.String() == c.last {
		return nil
	}
	c.last = c.buf.String()
	_, err := c.buf.WriteTo(c.w)
	return err
}

// Halt resets the terminal colors.
func (c *Console) Halt() error {
	_, err := c.w.Write([]byte("\033[0m"))
	return err
}
