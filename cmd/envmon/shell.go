// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"strings"

	"github.com/GermanBionicSystems/envmon/terminal"
	"github.com/abiosoft/ishell"
)

// shellWriter forwards command output to an ishell context.
type shellWriter struct {
	c *ishell.Context
}

func (w shellWriter) Write(p []byte) (int, error) {
	w.c.Print(strings.ReplaceAll(string(p), "\n\r", "\n"))
	return len(p), nil
}

// newShell returns a local shell running the commands of t.
func newShell(t *terminal.Table) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("envmon> ")
	for _, cmd := range t.Commands() {
		if cmd.Name() == "HELP" {
			// ishell has its own.
			continue
		}
		cmd := cmd
		sh.AddCmd(&ishell.Cmd{
			Name:    strings.ToLower(cmd.Name()),
			Aliases: []string{cmd.Name()},
			Help:    cmd.Help(),
			Func: func(c *ishell.Context) {
				if err := cmd.Run(shellWriter{c}, c.Args); err != nil {
					c.Err(err)
					return
				}
				c.Println()
			},
		})
	}
	return sh
}

func runShell(ctx context.Context, t *terminal.Table) error {
	sh := newShell(t)
	go func() {
		<-ctx.Done()
		sh.Close()
	}()
	sh.Run()
	return nil
}
