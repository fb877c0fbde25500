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

// Package reduce implements the pointwise reduction kernel of spec
// §4.B: dst[i] = op(src0[i], srcs[1][i], ..., srcs[k][i]).
//
// No library in the retrieved pack offers generic typed pointwise
// reduction over arbitrary numeric kinds (sum/min/max/bitwise across
// int8..uint64, float32/64); this kernel is therefore hand-written
// over encoding/binary-decoded slices rather than forced onto a
// third-party numeric library that doesn't fit — see DESIGN.md.
package reduce

import (
	"encoding/binary"
	"math"

	"github.com/probeum/kncoll/status"
)

// Op is a reduction operator.
type Op int

const (
	Sum Op = iota
	Prod
	Min
	Max
	Band
	Bor
	Bxor
	Land
	Lor
	Lxor
)

// Datatype is the element type reduced over.
type Datatype int

const (
	Int8 Datatype = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

// Size returns the byte width of one element of dt.
func Size(dt Datatype) int {
	switch dt {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

func isFloat(dt Datatype) bool { return dt == Float32 || dt == Float64 }

func isLogicalOnly(op Op) bool {
	switch op {
	case Band, Bor, Bxor, Land, Lor, Lxor:
		return true
	default:
		return false
	}
}

// Multi computes dst[i] = op(src0[i], srcs[0][i], ..., srcs[k-1][i])
// for count elements of datatype dt, k = len(srcs). When src0 == dst
// (same backing array) the operation is legal in-place accumulation,
// per spec §4.B.
func Multi(dst, src0 []byte, srcs [][]byte, count int, dt Datatype, op Op) error {
	if isLogicalOnly(op) && isFloat(dt) {
		return status.New(status.InvalidParam, status.UserError, "bitwise/logical op applied to floating datatype")
	}
	width := Size(dt)
	if width == 0 {
		return status.New(status.InvalidParam, status.UserError, "unknown datatype")
	}
	need := count * width
	if len(src0) < need || len(dst) < need {
		return status.New(status.InvalidParam, status.UserError, "buffer too small for count*dtsize")
	}
	for _, s := range srcs {
		if len(s) < need {
			return status.New(status.InvalidParam, status.UserError, "source vector too small for count*dtsize")
		}
	}

	for i := 0; i < count; i++ {
		off := i * width
		acc := loadElem(src0[off:off+width], dt)
		for _, s := range srcs {
			acc = applyOp(acc, loadElem(s[off:off+width], dt), op, dt)
		}
		storeElem(dst[off:off+width], acc, dt)
	}
	return nil
}

// elem is a tagged union wide enough to hold any supported datatype:
// loadElem fills the field that matches the datatype's kind (float64,
// signed or unsigned integer) and applyOp reads that same field.
type elem struct {
	u float64 // used for float datatypes
	i int64   // used for signed integer datatypes
	w uint64  // used for unsigned integer datatypes, also raw bits for logical ops
}

func loadElem(b []byte, dt Datatype) elem {
	switch dt {
	case Int8:
		return elem{i: int64(int8(b[0]))}
	case Uint8:
		return elem{w: uint64(b[0])}
	case Int16:
		return elem{i: int64(int16(binary.LittleEndian.Uint16(b)))}
	case Uint16:
		return elem{w: uint64(binary.LittleEndian.Uint16(b))}
	case Int32:
		return elem{i: int64(int32(binary.LittleEndian.Uint32(b)))}
	case Uint32:
		return elem{w: uint64(binary.LittleEndian.Uint32(b))}
	case Int64:
		return elem{i: int64(binary.LittleEndian.Uint64(b))}
	case Uint64:
		return elem{w: binary.LittleEndian.Uint64(b)}
	case Float32:
		return elem{u: float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))}
	case Float64:
		return elem{u: math.Float64frombits(binary.LittleEndian.Uint64(b))}
	default:
		return elem{}
	}
}

func storeElem(b []byte, e elem, dt Datatype) {
	switch dt {
	case Int8:
		b[0] = byte(int8(e.i))
	case Uint8:
		b[0] = byte(e.w)
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(e.i)))
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(e.w))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(e.i)))
	case Uint32:
		binary.LittleEndian.PutUint32(b, uint32(e.w))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(e.i))
	case Uint64:
		binary.LittleEndian.PutUint64(b, e.w)
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(e.u)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(e.u))
	}
}

func applyOp(a, b elem, op Op, dt Datatype) elem {
	if isFloat(dt) {
		switch op {
		case Sum:
			return elem{u: a.u + b.u}
		case Prod:
			return elem{u: a.u * b.u}
		case Min:
			return elem{u: math.Min(a.u, b.u)}
		case Max:
			return elem{u: math.Max(a.u, b.u)}
		}
		return a
	}
	signed := dt == Int8 || dt == Int16 || dt == Int32 || dt == Int64
	if signed {
		switch op {
		case Sum:
			return elem{i: a.i + b.i}
		case Prod:
			return elem{i: a.i * b.i}
		case Min:
			if a.i < b.i {
				return a
			}
			return b
		case Max:
			if a.i > b.i {
				return a
			}
			return b
		case Band:
			return elem{i: a.i & b.i}
		case Bor:
			return elem{i: a.i | b.i}
		case Bxor:
			return elem{i: a.i ^ b.i}
		case Land:
			return boolElem(a.i != 0 && b.i != 0)
		case Lor:
			return boolElem(a.i != 0 || b.i != 0)
		case Lxor:
			return boolElem((a.i != 0) != (b.i != 0))
		}
		return a
	}
	switch op {
	case Sum:
		return elem{w: a.w + b.w}
	case Prod:
		return elem{w: a.w * b.w}
	case Min:
		if a.w < b.w {
			return a
		}
		return b
	case Max:
		if a.w > b.w {
			return a
		}
		return b
	case Band:
		return elem{w: a.w & b.w}
	case Bor:
		return elem{w: a.w | b.w}
	case Bxor:
		return elem{w: a.w ^ b.w}
	case Land:
		return boolElem(a.w != 0 && b.w != 0)
	case Lor:
		return boolElem(a.w != 0 || b.w != 0)
	case Lxor:
		return boolElem((a.w != 0) != (b.w != 0))
	}
	return a
}

func boolElem(v bool) elem {
	if v {
		return elem{i: 1, w: 1}
	}
	return elem{}
}
