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

// Package oob implements the address-exchange engine of spec §4.G:
// a two-round all-gather over a caller-supplied out-of-band
// collective callback set, used to discover every rank's packed
// transport address during context or team bootstrap. It is a direct
// port, in idiom, of original_source's ucc_core_addr_exchange.
package oob

import (
	"encoding/binary"
	"time"

	"github.com/probeum/kncoll/log"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/team"
	"golang.org/x/time/rate"
)

// Request is an opaque handle to an in-flight OOB operation.
type Request interface{}

// CollCallbacks is the caller-supplied OOB collective callback set of
// spec §6.
type CollCallbacks struct {
	// Allgather starts a non-blocking all-gather of elemSize bytes
	// per rank from src into dst, returning a Request to poll.
	Allgather func(src, dst []byte, elemSize int) (Request, error)
	// ReqTest polls req; it returns status.ErrInProgress while
	// incomplete, nil on success, or a transport-fatal error.
	ReqTest func(req Request) error
	ReqFree func(req Request)
	// CollInfo is an opaque handle threaded through to Allgather by
	// the concrete OOB implementation; this package never inspects it.
	CollInfo interface{}
	// NOOBEps is the number of out-of-band participants (spec's
	// n_oob_eps), i.e. the all-gather's group size.
	NOOBEps int
}

// AddrStorage is the bootstrap state carried across re-entries of
// Engine.Advance, mirroring original_source's ucc_addr_storage_t.
type AddrStorage struct {
	Size    int
	AddrLen int
	Storage []byte
	Rank    int

	req   Request
	round int // 0 = not started, 1 = length all-gather in flight, 2 = address round to start, 3 = address all-gather in flight, 4 = done
}

// Engine drives the two-round protocol for one local context/team id.
type Engine struct {
	CtxID        team.CtxID
	LocalPayload []byte
	OOB          CollCallbacks

	localRecord []byte // marshaled team.AddressRecord{CtxID, Payload: LocalPayload}
	log         log.Logger
	limiter     *rate.Sometimes
}

// NewEngine constructs an Engine. localPayload is this rank's own
// packed transport address; a non-empty one is wrapped in a
// team.AddressRecord carrying ctxID so scanForRank can find it again
// after the all-gather. An empty localPayload (a pure-loopback
// context, per spec §4.G's zero-length case) contributes a zero-length
// address and no record, so that rank is not located by the scan.
func NewEngine(ctxID team.CtxID, localPayload []byte, cbs CollCallbacks) *Engine {
	var buf []byte
	if len(localPayload) > 0 {
		rec := team.AddressRecord{CtxID: ctxID, Payload: localPayload}
		buf = make([]byte, rec.WireSize())
		rec.Marshal(buf) // sized by WireSize just above; cannot fail
	}
	return &Engine{
		CtxID:        ctxID,
		LocalPayload: localPayload,
		OOB:          cbs,
		localRecord:  buf,
		log:          log.New("pkg", "oob"),
		limiter:      &rate.Sometimes{Interval: 2 * time.Second},
	}
}

// Advance drives one step of the protocol, returning status.ErrInProgress
// until both rounds and the rank-discovery scan complete. It must be
// re-entered (spec §4.G, §5 "Suspension points") until it returns nil
// or a fatal error.
func (e *Engine) Advance(s *AddrStorage) error {
	if s.req != nil {
		err := e.OOB.ReqTest(s.req)
		if status.Is(err, status.InProgress) {
			e.limiter.Do(func() {
				e.log.Trace("oob request still pending", "round", s.round)
			})
			return status.ErrInProgress
		}
		e.OOB.ReqFree(s.req)
		s.req = nil
		if err != nil {
			return status.Wrap(status.TransportError, status.TransportFatal, "oob req_test failed", err)
		}
	}

	if s.AddrLen == 0 && s.round == 0 {
		return e.startLengthRound(s)
	}
	if s.round == 1 {
		return e.finishLengthRound(s)
	}
	if s.round == 2 {
		return e.startAddrRound(s)
	}
	if s.round == 3 {
		return e.finishAddrRound(s)
	}
	return nil
}

const sizeofSizeT = 8

func (e *Engine) startLengthRound(s *AddrStorage) error {
	s.Size = e.OOB.NOOBEps
	myLen := make([]byte, sizeofSizeT)
	binary.LittleEndian.PutUint64(myLen, uint64(len(e.localRecord)))

	buf := make([]byte, s.Size*sizeofSizeT)
	req, err := e.OOB.Allgather(myLen, buf, sizeofSizeT)
	if err != nil {
		return status.Wrap(status.NoResource, status.TransportFatal, "failed to start oob allgather (length round)", err)
	}
	s.Storage = buf
	s.req = req
	s.round = 1
	return status.ErrInProgress
}

func (e *Engine) finishLengthRound(s *AddrStorage) error {
	var maxLen uint64
	for i := 0; i < s.Size; i++ {
		l := binary.LittleEndian.Uint64(s.Storage[i*sizeofSizeT : (i+1)*sizeofSizeT])
		if l > maxLen {
			maxLen = l
		}
	}
	if maxLen == 0 {
		// Zero-length case: every address is empty (pure-loopback
		// contexts); free the buffer and succeed with null storage.
		s.Storage = nil
		s.AddrLen = -1 // sentinel: "computed, and it's zero"
		s.round = 4
		return e.scanForRank(s)
	}
	s.AddrLen = int(maxLen)
	s.round = 2
	return e.startAddrRound(s)
}

func (e *Engine) startAddrRound(s *AddrStorage) error {
	L := s.AddrLen
	buf := make([]byte, (s.Size+1)*L)
	copy(buf[s.Size*L:s.Size*L+len(e.localRecord)], e.localRecord)

	req, err := e.OOB.Allgather(buf[s.Size*L:(s.Size+1)*L], buf, L)
	if err != nil {
		return status.Wrap(status.NoResource, status.TransportFatal, "failed to start oob allgather (address round)", err)
	}
	s.Storage = buf
	s.req = req
	s.round = 3
	return status.ErrInProgress
}

func (e *Engine) finishAddrRound(s *AddrStorage) error {
	s.round = 4
	return e.scanForRank(s)
}

// scanForRank locates the slot whose embedded context-id equals our
// own, per spec §4.G. A collision (more than one match) is fatal.
func (e *Engine) scanForRank(s *AddrStorage) error {
	if s.AddrLen <= 0 {
		s.Rank = -1
		return nil
	}
	L := s.AddrLen
	found := -1
	for i := 0; i < s.Size; i++ {
		rec, err := team.UnmarshalAddressRecord(s.Storage[i*L : (i+1)*L])
		if err != nil {
			continue
		}
		if rec.CtxID.Equal(e.CtxID) {
			if found != -1 {
				s.Storage = nil
				return status.New(status.NoMessage, status.ProtocolViolation, "proc info collision during address exchange")
			}
			found = i
		}
	}
	s.Rank = found
	return nil
}
