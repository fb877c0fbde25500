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

// Package task implements the per-collective task object of spec §4.C:
// phase cursor, scratch, pending-message count, team handle, and
// collective arguments. A Task's lifetime is shorter than its team's
// and its context's, so it holds non-owning references to both
// (spec §9 DESIGN NOTES).
package task

import (
	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/team"
	"github.com/probeum/kncoll/transport"
)

// Phase is the resumable state machine's cursor. knomial defines the
// concrete phase values; Task only stores the current one so it
// survives suspension, per spec §3's invariant.
type Phase int

// Args are the collective arguments of spec §3.
type Args struct {
	Op       reduce.Op
	Datatype reduce.Datatype
	Count    int
	Src      []byte
	Dst      []byte
	InPlace  bool
	Root     int
	SrcMType transport.MemType
	DstMType transport.MemType
}

// Task is the per-collective state object. It is created by New on
// a Team, mutated only by the owning thread via Progress, and
// destroyed by Finalize after completion.
type Task struct {
	Team *team.Team
	Args Args

	Phase            Phase
	Dist             int
	MaxDist          int
	Radix            int
	ChildrenPerCycle int
	Scratch          []byte
	Pending          transport.PendingCounter
	Status           error

	// Ctx is a non-owning back-reference to the owning runtime
	// context, set by rtctx.Context.PostReduce; nothing in this module
	// reads it back.
	// It is stored as interface{} to avoid an import cycle between
	// task and rtctx (task is the leaf of that dependency edge).
	Ctx interface{}
}

// New prepares a task's arguments, enforcing the in-place aliasing
// invariant of spec §3 at construction time rather than deep inside
// the algorithm: if in-place and the caller is root, Src is aliased
// to Dst before any algorithm reads it.
func New(tm *team.Team, args Args) (*Task, error) {
	if args.Count < 0 {
		return nil, status.New(status.InvalidParam, status.UserError, "negative count")
	}
	if args.Root < 0 || args.Root >= tm.Size() {
		return nil, status.New(status.InvalidParam, status.UserError, "root out of range")
	}
	if args.InPlace && tm.Rank() == args.Root {
		args.Src = args.Dst
	}
	return &Task{Team: tm, Args: args}, nil
}

// Reset clears the mutable progress state so the same Task can be
// reused across repeated runs, per spec §8 property 4 (reset
// idempotence).
func (t *Task) Reset() {
	t.Phase = 0
	t.Dist = 0
	t.Pending = transport.PendingCounter{}
	t.Status = nil
	t.ChildrenPerCycle = 0
}

// Finalize releases scratch. It is a no-op when Scratch aliases a
// caller-owned buffer (the leaf optimization of spec §4.D), since the
// leaf's Scratch pointer is the caller's source buffer, not an
// allocation owned by the Task.
func (t *Task) Finalize() error {
	t.Scratch = nil
	return nil
}
