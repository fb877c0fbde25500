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

package simnet

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/probeum/kncoll/oob"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/team"
)

// Coordinator is the shared out-of-band collective underlying one
// team's address exchange: an in-memory stand-in for whatever real
// all-gather transport a caller would otherwise supply per spec §6.
type Coordinator struct {
	size int

	mu    sync.Mutex
	round *allgatherRound
}

type allgatherRound struct {
	elemSize int
	shared   []byte
	arrived  map[int]bool
}

type request struct {
	round *allgatherRound
	size  int
	dst   []byte
}

// NewCoordinator constructs a Coordinator for a size-rank all-gather.
func NewCoordinator(size int) *Coordinator {
	return &Coordinator{size: size}
}

// OOB builds the oob.CollCallbacks one rank of this coordinator's
// team uses, per spec §6's external interface.
func (c *Coordinator) OOB(rank int) oob.CollCallbacks {
	return oob.CollCallbacks{
		NOOBEps: c.size,
		Allgather: func(src, dst []byte, elemSize int) (oob.Request, error) {
			return c.start(rank, src, dst, elemSize)
		},
		ReqTest: func(req oob.Request) error {
			return c.test(req.(*request))
		},
		ReqFree: func(req oob.Request) {},
	}
}

func (c *Coordinator) start(rank int, src, dst []byte, elemSize int) (*request, error) {
	c.mu.Lock()
	if c.round == nil {
		c.round = &allgatherRound{
			elemSize: elemSize,
			shared:   make([]byte, c.size*elemSize),
			arrived:  make(map[int]bool, c.size),
		}
	}
	r := c.round
	copy(r.shared[rank*elemSize:(rank+1)*elemSize], src)
	r.arrived[rank] = true
	c.mu.Unlock()
	return &request{round: r, size: c.size, dst: dst}, nil
}

func (c *Coordinator) test(req *request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(req.round.arrived) < req.size {
		return status.ErrInProgress
	}
	copy(req.dst, req.round.shared)
	if c.round == req.round {
		c.round = nil
	}
	return nil
}

// Bootstrap runs the two-round address-exchange engine for every rank
// of a size-rank team concurrently over one Coordinator, then builds
// one team.Team per rank from the result — the simulated equivalent
// of original_source's internal service-team bring-up (spec §4.F
// SUPPLEMENTED FEATURES #1), using errgroup the way the teacher's
// fan-out code does elsewhere in the pack.
func Bootstrap(size int, payloads [][]byte) ([]*team.Team, error) {
	coord := NewCoordinator(size)
	ids := make([]uuid.UUID, size)
	for i := range ids {
		ids[i] = uuid.New()
	}

	teams := make([]*team.Team, size)
	var g errgroup.Group
	for r := 0; r < size; r++ {
		r := r
		g.Go(func() error {
			engine := oob.NewEngine(team.CtxID{ProcID: ids[r], Seq: 1}, payloads[r], coord.OOB(r))
			s := &oob.AddrStorage{}
			for {
				err := engine.Advance(s)
				if err == nil {
					break
				}
				if status.Is(err, status.InProgress) {
					continue
				}
				return err
			}
			tm, err := team.FromAddressExchange(s.Rank, s.Size, s.AddrLen, s.Storage)
			if err != nil {
				return err
			}
			teams[r] = tm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return teams, nil
}
