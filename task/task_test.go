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

package task

import (
	"errors"
	"testing"

	"github.com/probeum/kncoll/team"
)

func newTeam(t *testing.T, rank, size int) *team.Team {
	t.Helper()
	tm, err := team.New(rank, size, make([]team.Endpoint, size))
	if err != nil {
		t.Fatalf("team.New: %v", err)
	}
	return tm
}

func TestNewRejectsNegativeCount(t *testing.T) {
	tm := newTeam(t, 0, 2)
	if _, err := New(tm, Args{Count: -1, Root: 0}); err == nil {
		t.Errorf("expected error for negative count")
	}
}

func TestNewRejectsRootOutOfRange(t *testing.T) {
	tm := newTeam(t, 0, 2)
	if _, err := New(tm, Args{Count: 1, Root: 2}); err == nil {
		t.Errorf("expected error for root >= size")
	}
}

func TestNewAliasesInPlaceAtRoot(t *testing.T) {
	tm := newTeam(t, 0, 2)
	dst := make([]byte, 8)
	tk, err := New(tm, Args{Count: 1, Root: 0, InPlace: true, Dst: dst, Src: make([]byte, 8)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if &tk.Args.Src[0] != &dst[0] {
		t.Errorf("expected in-place root to alias Src to Dst")
	}
}

func TestNewDoesNotAliasInPlaceAtNonRoot(t *testing.T) {
	tm := newTeam(t, 1, 2)
	dst := make([]byte, 8)
	src := make([]byte, 8)
	tk, err := New(tm, Args{Count: 1, Root: 0, InPlace: true, Dst: dst, Src: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if &tk.Args.Src[0] != &src[0] {
		t.Errorf("expected non-root rank's Src to be left untouched")
	}
}

func TestResetClearsProgressState(t *testing.T) {
	tm := newTeam(t, 0, 2)
	tk, err := New(tm, Args{Count: 1, Root: 0, Src: make([]byte, 8), Dst: make([]byte, 8)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tk.Phase = 3
	tk.Dist = 4
	tk.ChildrenPerCycle = 2
	tk.Status = errors.New("stale status")
	tk.Pending.Add(5)

	tk.Reset()
	if tk.Phase != 0 || tk.Dist != 0 || tk.ChildrenPerCycle != 0 || tk.Status != nil {
		t.Errorf("Reset did not clear progress state: %+v", tk)
	}
	if tk.Pending.Load() != 0 {
		t.Errorf("Reset did not clear pending counter")
	}
}

func TestFinalizeClearsScratch(t *testing.T) {
	tm := newTeam(t, 0, 2)
	tk, err := New(tm, Args{Count: 1, Root: 0, Src: make([]byte, 8), Dst: make([]byte, 8)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tk.Scratch = make([]byte, 16)
	if err := tk.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if tk.Scratch != nil {
		t.Errorf("expected Scratch cleared after Finalize")
	}
}
