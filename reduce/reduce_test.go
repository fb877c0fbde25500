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

package reduce

import (
	"encoding/binary"
	"math"
	"testing"
)

func float64Buf(vals ...float64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeFloat64(buf []byte, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func int32Buf(vals ...int32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func decodeInt32(buf []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func TestMultiSumFloat64(t *testing.T) {
	dst := make([]byte, 16)
	dst0 := float64Buf(1, 2)
	src1 := float64Buf(10, 20)
	src2 := float64Buf(100, 200)

	if err := Multi(dst, dst0, [][]byte{src1, src2}, 2, Float64, Sum); err != nil {
		t.Fatalf("Multi: %v", err)
	}
	got := decodeFloat64(dst, 2)
	want := []float64{111, 222}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("elem %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestMultiMaxInt32(t *testing.T) {
	dst := make([]byte, 8)
	dst0 := int32Buf(5, -5)
	src1 := int32Buf(3, -9)
	src2 := int32Buf(9, -1)

	if err := Multi(dst, dst0, [][]byte{src1, src2}, 2, Int32, Max); err != nil {
		t.Fatalf("Multi: %v", err)
	}
	got := decodeInt32(dst, 2)
	want := []int32{9, -1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("elem %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestMultiNoSources(t *testing.T) {
	dst := make([]byte, 8)
	dst0 := int32Buf(1, 2)
	if err := Multi(dst, dst0, nil, 2, Int32, Sum); err != nil {
		t.Fatalf("Multi: %v", err)
	}
	got := decodeInt32(dst, 2)
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("expected passthrough of dst0, got %v", got)
	}
}

func TestMultiLogicalOpRejectsFloat(t *testing.T) {
	dst := make([]byte, 8)
	dst0 := float64Buf(1)
	src := float64Buf(1)
	if err := Multi(dst, dst0, [][]byte{src}, 1, Float64, Land); err == nil {
		t.Fatalf("expected error combining a logical op with a float datatype")
	}
}

func TestMultiBufferSizeMismatch(t *testing.T) {
	dst := make([]byte, 8)
	dst0 := int32Buf(1, 2)
	short := make([]byte, 4)
	if err := Multi(dst, dst0, [][]byte{short}, 2, Int32, Sum); err == nil {
		t.Fatalf("expected error for undersized source buffer")
	}
}

func TestSizeByDatatype(t *testing.T) {
	cases := map[Datatype]int{
		Int8: 1, Uint8: 1,
		Int16: 2, Uint16: 2,
		Int32: 4, Uint32: 4, Float32: 4,
		Int64: 8, Uint64: 8, Float64: 8,
	}
	for dt, want := range cases {
		if got := Size(dt); got != want {
			t.Errorf("Size(%v) = %d, want %d", dt, got, want)
		}
	}
}
