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

// Package team implements the data model of spec §3: an immutable
// ordered group of ranks, plus the wire address record used by the
// bootstrap address-exchange engine.
package team

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/probeum/kncoll/status"
)

// Endpoint is a per-peer transport address. Its packing format is an
// external collaborator's concern (spec §1): this package treats it
// as an opaque blob.
type Endpoint []byte

// Team is an immutable ordered group of ranks 0..size-1, aside from
// the progressive teardown state Destroy advances.
type Team struct {
	rank      int
	size      int
	endpoints []Endpoint

	destroyTicks int32 // -1 = teardown not yet started
}

// New constructs a Team. endpoints must have exactly size entries;
// endpoints[rank] may be nil (a rank does not need its own address).
func New(rank, size int, endpoints []Endpoint) (*Team, error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, status.New(status.InvalidParam, status.UserError, "rank out of range")
	}
	if len(endpoints) != size {
		return nil, status.New(status.InvalidParam, status.UserError, "endpoints length does not match team size")
	}
	cp := make([]Endpoint, size)
	copy(cp, endpoints)
	return &Team{rank: rank, size: size, endpoints: cp, destroyTicks: -1}, nil
}

func (t *Team) Rank() int { return t.rank }
func (t *Team) Size() int { return t.size }

// Endpoint returns the opaque address of peer i.
func (t *Team) Endpoint(i int) Endpoint {
	if i < 0 || i >= t.size {
		return nil
	}
	return t.endpoints[i]
}

// CtxID is the stable numeric identifier of spec §3: a per-process
// identifier paired with a monotonically increasing sequence number,
// exactly original_source's ucc_context_id_t (pi + seq_num).
type CtxID struct {
	ProcID uuid.UUID
	Seq    uint32
}

// Equal mirrors UCC_CTX_ID_EQUAL.
func (c CtxID) Equal(o CtxID) bool {
	return c.ProcID == o.ProcID && c.Seq == o.Seq
}

// ComponentAddr is one packed-component record inside an
// AddressRecord's header, per spec §6.
type ComponentAddr struct {
	ID     uint64
	Offset int
}

// AddressRecord is the per-rank wire record of spec §6:
// { ctx_id, n_components, components[].{id, offset}, payload bytes }.
type AddressRecord struct {
	CtxID      CtxID
	Components []ComponentAddr
	Payload    []byte
}

// Marshal lays out the record contiguously into a buffer of at least
// WireSize(r) bytes, no byte-swap performed (spec §6: "the exchange is
// homogeneous or the underlying transport normalizes").
func (r AddressRecord) Marshal(buf []byte) error {
	need := r.WireSize()
	if len(buf) < need {
		return status.New(status.NoMemory, status.AllocationFatal, "address record buffer too small")
	}
	off := 0
	copy(buf[off:off+16], r.CtxID.ProcID[:])
	off += 16
	binary.LittleEndian.PutUint32(buf[off:], r.CtxID.Seq)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Components)))
	off += 4
	for _, c := range r.Components {
		binary.LittleEndian.PutUint64(buf[off:], c.ID)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(c.Offset))
		off += 4
	}
	copy(buf[off:], r.Payload)
	return nil
}

// WireSize returns the number of bytes Marshal writes.
func (r AddressRecord) WireSize() int {
	return 16 + 4 + 4 + len(r.Components)*12 + len(r.Payload)
}

// UnmarshalAddressRecord parses a record previously laid out by
// Marshal. The record carries no payload length, so Payload is every
// byte after the component table: when a fixed-stride L-byte slot is
// larger than the record it holds, the slot's trailing padding is
// included in Payload.
func UnmarshalAddressRecord(buf []byte) (AddressRecord, error) {
	var r AddressRecord
	if len(buf) < 24 {
		return r, status.New(status.InvalidParam, status.ProtocolViolation, "address record slot too small")
	}
	off := 0
	copy(r.CtxID.ProcID[:], buf[off:off+16])
	off += 16
	r.CtxID.Seq = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	n := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if n < 0 || off+n*12 > len(buf) {
		return r, status.New(status.InvalidParam, status.ProtocolViolation, "address record component count out of range")
	}
	r.Components = make([]ComponentAddr, n)
	for i := 0; i < n; i++ {
		r.Components[i].ID = binary.LittleEndian.Uint64(buf[off:])
		off += 8
		r.Components[i].Offset = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	r.Payload = append([]byte(nil), buf[off:]...)
	return r, nil
}

// FromAddressExchange builds a Team from a completed address-exchange
// buffer: size fixed-stride slots of addrLen bytes each, one per
// rank, as left by oob.Engine. addrLen <= 0 is the zero-length
// (pure-loopback) case, producing a trivial single-rank team.
func FromAddressExchange(rank, size, addrLen int, storage []byte) (*Team, error) {
	if addrLen <= 0 {
		return New(0, 1, []Endpoint{nil})
	}
	if rank < 0 {
		return nil, status.New(status.NotFound, status.ProtocolViolation, "local rank not found in address-exchange result")
	}
	endpoints := make([]Endpoint, size)
	for i := 0; i < size; i++ {
		rec, err := UnmarshalAddressRecord(storage[i*addrLen : (i+1)*addrLen])
		if err != nil {
			return nil, err
		}
		endpoints[i] = Endpoint(rec.Payload)
	}
	return New(rank, size, endpoints)
}

// Destroy progressively tears down the team, mirroring
// original_source's ucc_team_destroy: the first call starts a
// settling countdown standing in for the real implementation's
// teardown barrier collective across every rank, and each subsequent
// call advances it by one tick. Callers (see rtctx.Context.Destroy)
// must keep calling it — interleaved with progress — until it
// returns nil, exactly the `while (UCC_INPROGRESS == status)` loop of
// original_source/src/core/ucc_context.c.
func (t *Team) Destroy() error {
	if t.destroyTicks < 0 {
		t.destroyTicks = int32(t.size)
	}
	if t.destroyTicks == 0 {
		return nil
	}
	t.destroyTicks--
	return status.ErrInProgress
}
