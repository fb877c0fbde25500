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

// Package log provides structured, leveled logging in the style the
// rest of this module expects: Info("msg", "key", value, ...) rather
// than fmt.Printf. There is no third-party structured-logging
// dependency in the retrieved pack, so this is built on the concrete
// terminal-detection libraries the teacher's go.mod already carries
// for exactly this purpose (go-stack, go-isatty, go-colorable,
// fatih/color) — see DESIGN.md.
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
)

// Lvl is a logging level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERRO"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DBUG"
	case LvlTrace:
		return "TRCE"
	default:
		return "UNKNOWN"
	}
}

// Record is a single log event.
type Record struct {
	Time time.Time
	Lvl  Lvl
	Msg  string
	Ctx  []interface{}
	Call stack.Call
}

// Handler processes a Record. Handlers are chained with Filter/Multi.
type Handler interface {
	Log(r *Record) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(r *Record) error

func (h HandlerFunc) Log(r *Record) error { return h(r) }

// Logger emits Records through its Handler, tagging each one with the
// key/value context bound by New.
type Logger interface {
	New(ctx ...interface{}) Logger
	SetHandler(h Handler)

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
	mu  sync.RWMutex
	h   Handler
}

// New returns a Logger with ctx bound as its context, writing to
// StdoutHandler.
func New(ctx ...interface{}) Logger {
	return &logger{ctx: normalize(ctx), h: StdoutHandler}
}

func (l *logger) New(ctx ...interface{}) Logger {
	l.mu.RLock()
	h := l.h
	l.mu.RUnlock()
	child := &logger{ctx: make([]interface{}, 0, len(l.ctx)+len(ctx)), h: h}
	child.ctx = append(child.ctx, l.ctx...)
	child.ctx = append(child.ctx, normalize(ctx)...)
	return child
}

func (l *logger) SetHandler(h Handler) {
	l.mu.Lock()
	l.h = h
	l.mu.Unlock()
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	l.mu.RLock()
	h := l.h
	l.mu.RUnlock()
	if h == nil {
		return
	}
	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, normalize(ctx)...)
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  all,
		Call: stack.Caller(2),
	}
	if err := h.Log(r); err != nil {
		fmt.Fprintf(os.Stderr, "log: handler error: %v\n", err)
	}
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// normalize pads an odd-length ctx list with "!MISSING" the way the
// teacher's own logger tolerates mismatched key/value pairs.
func normalize(ctx []interface{}) []interface{} {
	if len(ctx)%2 != 0 {
		ctx = append(ctx, "!MISSING")
	}
	return ctx
}
