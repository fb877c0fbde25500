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
	"bytes"
	"fmt"

	"github.com/fatih/color"
)

// Format renders a Record to bytes.
type Format interface {
	Format(r *Record) []byte
}

type formatFunc func(*Record) []byte

func (f formatFunc) Format(r *Record) []byte { return f(r) }

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalFormat renders a colored, human-friendly line when useColor
// is true (the caller decides that from isatty, see StreamHandler),
// and a plain line otherwise.
func TerminalFormat(useColor bool) Format {
	return formatFunc(func(r *Record) []byte {
		var b bytes.Buffer
		lvl := r.Lvl.String()
		if useColor {
			lvl = lvlColor[r.Lvl].Sprint(lvl)
		}
		fmt.Fprintf(&b, "%s[%s] %s", r.Time.Format("2006-01-02T15:04:05-0700"), lvl, r.Msg)
		writeCtx(&b, r.Ctx)
		if r.Call.Frame().Function != "" {
			fmt.Fprintf(&b, " caller=%s:%d", r.Call.Frame().File, r.Call.Frame().Line)
		}
		b.WriteByte('\n')
		return b.Bytes()
	})
}

func writeCtx(b *bytes.Buffer, ctx []interface{}) {
	type kv struct {
		k string
		v interface{}
	}
	pairs := make([]kv, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		k, ok := ctx[i].(string)
		if !ok {
			k = fmt.Sprint(ctx[i])
		}
		pairs = append(pairs, kv{k, ctx[i+1]})
	}
	for _, p := range pairs {
		fmt.Fprintf(b, " %s=%v", p.k, p.v)
	}
}

// LogfmtFormat renders key=value pairs with no color, suitable for a
// file sink.
func LogfmtFormat() Format {
	return formatFunc(func(r *Record) []byte {
		var b bytes.Buffer
		fmt.Fprintf(&b, "t=%s lvl=%s msg=%q", r.Time.Format(time3339), r.Lvl, r.Msg)
		writeCtx(&b, r.Ctx)
		b.WriteByte('\n')
		return b.Bytes()
	})
}

const time3339 = "2006-01-02T15:04:05.000Z0700"
