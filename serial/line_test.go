// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"

	"periph.io/x/conn/v3/conntest"
)

type pipeLine struct {
	io.Reader
	io.Writer
}

func TestLine_echo(t *testing.T) {
	pr, pw := io.Pipe()
	var out bytes.Buffer
	l := NewLine(&pipeLine{pr, &out}, "pipe")
	tr := newTransport(t, l, 8, nil)

	errc := make(chan error, 1)
	go func() { errc <- l.Serve(context.Background(), tr.HandleInterrupt) }()
	go pw.Write([]byte("hello"))

	var got []byte
	deadline := time.Now().Add(10 * time.Second)
	for len(got) < 5 && time.Now().Before(deadline) {
		if c, ok := tr.RecvByte(); ok {
			got = append(got, c-'a'+'A')
		} else {
			runtime.Gosched()
		}
	}
	if string(got) != "HELLO" {
		t.Fatalf("received %q", got)
	}
	if _, err := tr.Write(got); err != nil {
		t.Fatal(err)
	}
	pw.Close()
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if out.String() != "HELLO" {
		t.Fatalf("sent %q", out.String())
	}
}

func TestLine_cancel(t *testing.T) {
	pr, _ := io.Pipe()
	l := NewLine(&pipeLine{pr, io.Discard}, "idle")
	tr := newTransport(t, l, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Serve(ctx, tr.HandleInterrupt) }()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}
	pr.Close()
}

func TestLine_readError(t *testing.T) {
	pr, pw := io.Pipe()
	l := NewLine(&pipeLine{pr, io.Discard}, "broken")
	tr := newTransport(t, l, 8, nil)
	boom := errors.New("boom")
	pw.CloseWithError(boom)
	if err := l.Serve(context.Background(), tr.HandleInterrupt); !errors.Is(err, boom) {
		t.Fatal(err)
	}
}

func TestConnReadWriter(t *testing.T) {
	c := conntest.Playback{
		Ops: []conntest.IO{
			{W: []byte("$$ ")},
			{R: []byte{'t'}},
		},
	}
	rw := &ConnReadWriter{Conn: &c}
	if n, err := rw.Write([]byte("$$ ")); n != 3 || err != nil {
		t.Fatal(n, err)
	}
	var buf [4]byte
	if n, err := rw.Read(buf[:]); n != 1 || err != nil || buf[0] != 't' {
		t.Fatal(n, err, buf)
	}
	if n, err := rw.Read(nil); n != 0 || err != nil {
		t.Fatal(n, err)
	}
	if rw.String() != "playback" {
		t.Fatal(rw.String())
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
