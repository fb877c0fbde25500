// Copyright 2017 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// StreamHandler writes Records, formatted, to an io.Writer, one at a
// time under a mutex so concurrent loggers don't interleave partial
// lines.
func StreamHandler(wr io.Writer, fmtr Format) Handler {
	var mu sync.Mutex
	return HandlerFunc(func(r *Record) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := wr.Write(fmtr.Format(r))
		return err
	})
}

// LvlFilterHandler drops Records more verbose than maxLvl.
func LvlFilterHandler(maxLvl Lvl, h Handler) Handler {
	return HandlerFunc(func(r *Record) error {
		if r.Lvl > maxLvl {
			return nil
		}
		return h.Log(r)
	})
}

// MultiHandler fans a Record out to several handlers, returning the
// first error encountered (if any) after trying them all.
func MultiHandler(hs ...Handler) Handler {
	return HandlerFunc(func(r *Record) error {
		var first error
		for _, h := range hs {
			if err := h.Log(r); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// DiscardHandler drops every Record; useful in tests that don't want
// log noise but still want a non-nil Handler.
func DiscardHandler() Handler {
	return HandlerFunc(func(r *Record) error { return nil })
}

// StdoutHandler is the default handler: colored terminal output if
// stdout is a TTY, plain text otherwise — the same isatty-gated
// decision the teacher's CLI tools make before printing.
var StdoutHandler = StreamHandler(colorableStdout(), TerminalFormat(isTerminal()))

func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func colorableStdout() io.Writer {
	if isTerminal() {
		return colorable.NewColorableStdout()
	}
	return os.Stdout
}
