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

// Package transport is the non-blocking point-to-point facade of spec
// §4.A. Concrete transports (real network fabrics) are explicitly out
// of scope per spec §1; this package only defines the interface every
// state machine in this module is written against, plus the
// PendingCounter every concrete Task carries.
package transport

import (
	"sync/atomic"

	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/team"
)

// MemType tags where a buffer lives (host, device, ...). The concrete
// set of memory types is a transport concern; this module only
// threads the tag through.
type MemType int

const (
	MemHost MemType = iota
	MemDevice
)

// PendingCounter is the single cross-thread datum between a Task and
// its transport under thread_mode=multi (spec §5): it must be atomic.
// A concrete transport decrements n out-of-band as operations
// complete, and latches the first error it observes.
type PendingCounter struct {
	n   int32
	err atomic.Value // error
}

func (p *PendingCounter) Add(delta int32) int32 { return atomic.AddInt32(&p.n, delta) }
func (p *PendingCounter) Load() int32            { return atomic.LoadInt32(&p.n) }

// Complete reports completion of one posted operation; err == nil on
// success. The first non-nil error latched wins.
func (p *PendingCounter) Complete(err error) {
	if err != nil {
		p.err.CompareAndSwap(nil, err)
	}
	p.Add(-1)
}

// Err returns the latched error, if any.
func (p *PendingCounter) Err() error {
	if v := p.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Transport is the facade every collective algorithm in this module
// is written against.
type Transport interface {
	// SendNB posts a non-blocking send of buf (count elements of dt)
	// to peer in team. It either enqueues the operation and
	// increments pending, or returns a NO_RESOURCE/TRANSPORT_ERROR
	// status synchronously.
	SendNB(buf []byte, count int, dt reduce.Datatype, mtype MemType, peer int, tm *team.Team, pending *PendingCounter) error

	// RecvNB posts a non-blocking receive into buf.
	RecvNB(buf []byte, count int, dt reduce.Datatype, mtype MemType, peer int, tm *team.Team, pending *PendingCounter) error

	// Test returns status.InProgress while pending.Load() > 0, else
	// the latched error (if any) or nil.
	Test(pending *PendingCounter) error
}

// DefaultTest implements the Test predicate of spec §4.A; every
// concrete Transport in this module (see internal/simnet) delegates
// to it rather than re-deriving the same three-way check.
func DefaultTest(pending *PendingCounter) error {
	if pending.Load() > 0 {
		return status.ErrInProgress
	}
	return pending.Err()
}
