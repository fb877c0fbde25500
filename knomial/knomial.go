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

// Package knomial is the k-nomial reduce state machine of spec §4.D —
// the heart of this module. It is a line-for-line port, in idiom, of
// original_source's ucc_tl_ucp_reduce_knomial_{start,progress,finalize},
// rewritten as an explicit phase enum with a switch-and-early-return
// at each suspension point instead of labeled gotos (spec §9 DESIGN
// NOTES option (a)).
package knomial

import (
	"github.com/probeum/kncoll/log"
	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/task"
	"github.com/probeum/kncoll/transport"
)

// Phase values for task.Task.Phase, in the vocabulary of spec §4.D.
const (
	PhaseInit task.Phase = iota
	PhaseMulti
	PhaseDone
)

var log15 = log.New("pkg", "knomial")

// vrank virtualizes rank around root, per spec §4.D: rank 0 is always
// the logical root from the algorithm's point of view.
func vrank(rank, root, size int) int {
	return (rank - root + size) % size
}

// unvrank maps a virtual rank back to a physical one.
func unvrank(vr, root, size int) int {
	return (vr + root) % size
}

// maxDist returns the smallest power of radix that is >= size, per
// spec §3's definition of task.max_dist.
func maxDist(size, radix int) int {
	d := 1
	for d < size {
		d *= radix
	}
	return d
}

// isLeaf reports whether vr is a leaf at the given radix/size, per
// spec §4.D's Leaf optimization: a rank is a leaf if vrank mod radix
// != 0, or if it is the last rank and size is not a perfect power of
// radix.
func isLeaf(vr, radix, size int) bool {
	return vr%radix != 0 || vr == size-1
}

// Start initializes and synchronously executes the first slice of the
// k-nomial reduce, mirroring ucc_tl_ucp_reduce_knomial_start. radix
// must be >= 2. It returns status.ErrInProgress if the task
// suspended (the caller must enqueue it on a progress queue), or nil
// on synchronous completion.
func Start(t *task.Task, tm transport.Transport, radix int) error {
	if radix < 2 {
		return status.New(status.InvalidParam, status.UserError, "radix must be >= 2")
	}
	t.Reset()
	t.Radix = radix

	size := t.Team.Size()
	root := t.Args.Root
	myrank := t.Team.Rank()
	vr := vrank(myrank, root, size)

	t.MaxDist = maxDist(size, radix)
	t.Dist = 1
	t.Phase = PhaseInit

	if isLeaf(vr, radix, size) {
		// Leaves allocate no scratch; their scratch is the caller's
		// source buffer, per spec §4.D "Leaf optimization".
		t.Scratch = t.Args.Src
	} else {
		dataSize := t.Args.Count * reduce.Size(t.Args.Datatype)
		t.Scratch = make([]byte, dataSize*radix)
		copy(t.Scratch[:dataSize], t.Args.Src)
	}

	log15.Trace("reduce_kn start", "rank", myrank, "vrank", vr, "size", size, "radix", radix, "max_dist", t.MaxDist)

	err := Progress(t, tm)
	if status.Is(err, status.InProgress) {
		return err
	}
	return err
}

// rbuf returns the buffer a collector accumulates into: the caller's
// destination at the root, the task's scratch otherwise — "so no
// final copy is required" per spec §4.D.
func rbuf(t *task.Task) []byte {
	if t.Team.Rank() == t.Args.Root {
		return t.Args.Dst
	}
	return t.Scratch
}

// Progress resumes the level loop. It is the direct translation of
// ucc_tl_ucp_reduce_knomial_progress: every re-entry first checks
// whether posted point-to-point operations are still pending
// (PhaseProgress-equivalent passive wait via transport.Test), then
// re-enters the saved phase.
func Progress(t *task.Task, tm transport.Transport) error {
	if err := tm.Test(&t.Pending); err != nil {
		if status.Is(err, status.InProgress) {
			return err
		}
		// transport-fatal: terminal for this task, no retry, per spec §7.
		t.Status = status.Wrap(status.TransportError, status.TransportFatal, "p2p operation failed", err)
		return t.Status
	}

	size := t.Team.Size()
	root := t.Args.Root
	myrank := t.Team.Rank()
	vr := vrank(myrank, root, size)
	dataSize := t.Args.Count * reduce.Size(t.Args.Datatype)
	dst := rbuf(t)

	switch t.Phase {
	case PhaseMulti:
		if err := finishMulti(t, dst, dataSize); err != nil {
			return err
		}
		t.Dist *= t.Radix
		t.Phase = PhaseInit
		fallthrough

	case PhaseInit:
		for t.Dist <= t.MaxDist {
			if vr%t.Dist == 0 {
				pos := (vr / t.Dist) % t.Radix
				if pos == 0 {
					if err := postReceives(t, tm, vr, size, dataSize); err != nil {
						return err
					}
					t.Phase = PhaseMulti
					return status.ErrInProgress
				}
				if err := postSend(t, tm, vr, pos, size, root, dataSize); err != nil {
					return err
				}
			}
			t.Dist *= t.Radix
			t.Phase = PhaseInit
			return status.ErrInProgress
		}
		t.Phase = PhaseDone
		fallthrough

	case PhaseDone:
		if t.Pending.Load() != 0 {
			t.Status = status.New(status.NoResource, status.AllocationFatal, "pending p2p operations at terminal phase")
			return t.Status
		}
		t.Status = nil
		return nil
	}
	return status.New(status.NotImplemented, status.UserError, "unknown phase")
}

// postReceives posts one non-blocking receive per present child at
// the current level, mirroring the collector branch of
// ucc_tl_ucp_reduce_knomial_progress.
func postReceives(t *task.Task, tm transport.Transport, vr, size, dataSize int) error {
	root := t.Args.Root
	scratchOffset := dataSize // received vectors start after this rank's own partial
	t.ChildrenPerCycle = 0
	for i := 1; i < t.Radix; i++ {
		vpeer := vr + i*t.Dist
		if vpeer >= size {
			break
		}
		peer := unvrank(vpeer, root, size)
		dst := t.Scratch[scratchOffset : scratchOffset+dataSize]
		if err := tm.RecvNB(dst, t.Args.Count, t.Args.Datatype, t.Args.DstMType, peer, t.Team, &t.Pending); err != nil {
			t.Status = status.Wrap(status.TransportError, status.TransportFatal, "recv_nb failed", err)
			return t.Status
		}
		t.ChildrenPerCycle++
		scratchOffset += dataSize
	}
	return nil
}

// postSend sends this rank's current partial to its parent at the
// current level, mirroring the contributor branch.
func postSend(t *task.Task, tm transport.Transport, vr, pos, size, root, dataSize int) error {
	vrootAtLevel := vr - pos*t.Dist
	rootAtLevel := unvrank(vrootAtLevel, root, size)
	buf := t.Scratch[:dataSize]
	if err := tm.SendNB(buf, t.Args.Count, t.Args.Datatype, t.Args.SrcMType, rootAtLevel, t.Team, &t.Pending); err != nil {
		t.Status = status.Wrap(status.TransportError, status.TransportFatal, "send_nb failed", err)
		return t.Status
	}
	return nil
}

// finishMulti invokes the reduction kernel once a level's receives
// complete, mirroring the PHASE_MULTI block: the operand for the
// very first level is the caller's source buffer, afterwards it is
// dst (the running accumulation), per spec §4.D "Buffers and where
// results land".
func finishMulti(t *task.Task, dst []byte, dataSize int) error {
	if t.ChildrenPerCycle == 0 {
		if t.Dist == 1 {
			// Single-rank team: the root is a childless collector on
			// its very first (and only) level. original_source relies
			// on a higher algorithm-selection layer (not in the
			// retrieved sources) to special-case team_size==1 before
			// ever invoking reduce_knomial; folded in here so a
			// 1-rank team still produces dst == src instead of
			// leaving dst unwritten.
			copy(dst[:dataSize], t.Args.Src[:dataSize])
		}
		return nil
	}
	var operand []byte
	if t.Dist == 1 {
		operand = t.Args.Src[:dataSize]
	} else {
		operand = dst[:dataSize]
	}
	srcs := make([][]byte, t.ChildrenPerCycle)
	off := dataSize
	for i := range srcs {
		srcs[i] = t.Scratch[off : off+dataSize]
		off += dataSize
	}
	if err := reduce.Multi(dst[:dataSize], operand, srcs, t.Args.Count, t.Args.Datatype, t.Args.Op); err != nil {
		t.Status = status.Wrap(status.InvalidParam, status.UserError, "dt reduction failed", err)
		return t.Status
	}
	return nil
}

// Finalize releases the task's scratch, mirroring
// ucc_tl_ucp_reduce_knomial_finalize.
func Finalize(t *task.Task) error {
	return t.Finalize()
}
