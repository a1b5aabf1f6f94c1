// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package terminal

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
)

// MaxTokens is the maximum number of words of a command line, the command
// name included. Extra words are ignored.
const MaxTokens = 30

// ErrUnknown is returned by Exec when no command has the requested name.
var ErrUnknown = errors.New("terminal: unknown command")

// Command is an entry of a Table.
type Command interface {
	// Name is matched case-insensitively against the first word of a line.
	Name() string
	// Help is a one-line description.
	Help() string
	// Run executes the command. args excludes the command name. Output goes
	// to w.
	Run(w io.Writer, args []string) error
}

// Func adapts a function to the Command interface.
type Func struct {
	N string
	H string
	F func(w io.Writer, args []string) error
}

// Name implements Command.
func (f *Func) Name() string { return f.N }

// Help implements Command.
func (f *Func) Help() string { return f.H }

// Run implements Command.
func (f *Func) Run(w io.Writer, args []string) error { return f.F(w, args) }

// Table dispatches command lines to Commands.
type Table struct {
	cmds []Command
}

// NewTable returns a Table holding cmds, in order, and a HELP command
// listing them.
func NewTable(cmds ...Command) (*Table, error) {
	t := &Table{}
	for _, c := range cmds {
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	if err := t.Add(&help{t: t}); err != nil {
		return nil, err
	}
	return t, nil
}

// Add appends c to the table.
func (t *Table) Add(c Command) error {
	if c.Name() == "" || strings.ContainsAny(c.Name(), " \t") {
		return fmt.Errorf("terminal: invalid command name %q", c.Name())
	}
	if _, ok := t.Lookup(c.Name()); ok {
		return fmt.Errorf("terminal: duplicate command %q", c.Name())
	}
	t.cmds = append(t.cmds, c)
	return nil
}

// Lookup returns the command called name, ignoring case.
func (t *Table) Lookup(name string) (Command, bool) {
	for _, c := range t.cmds {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return nil, false
}

// Commands returns the commands in the order they were added.
func (t *Table) Commands() []Command {
	return append([]Command(nil), t.cmds...)
}

// Exec splits line into words and runs the matching command. Words are
// separated by blanks; balanced quotes group words. A line that does not
// parse as quoted words, like "don't", is split on blanks alone. An empty
// line is ignored.
func (t *Table) Exec(w io.Writer, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		args = strings.Fields(line)
	}
	if len(args) == 0 {
		return nil
	}
	if len(args) > MaxTokens {
		args = args[:MaxTokens]
	}
	c, ok := t.Lookup(args[0])
	if !ok {
		if _, err := io.WriteString(w, "\n\rUnknown command\n\r"); err != nil {
			return err
		}
		return fmt.Errorf("%w %q", ErrUnknown, args[0])
	}
	return c.Run(w, args[1:])
}

// help lists the other commands of a Table.
type help struct {
	t *Table
}

func (h *help) Name() string {
	return "HELP"
}

func (h *help) Help() string {
	return "Details of the functions"
}

func (h *help) Run(w io.Writer, args []string) error {
	for _, c := range h.t.cmds {
		if c == Command(h) {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n\r%s:  %s", c.Name(), c.Help()); err != nil {
			return err
		}
	}
	return nil
}
