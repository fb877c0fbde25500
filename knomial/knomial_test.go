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

package knomial

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/task"
	"github.com/probeum/kncoll/team"
	"github.com/probeum/kncoll/transport"
)

// fakeNetwork is a minimal rendezvous transport for one team, used
// only by this package's own tests so knomial can be exercised
// end-to-end without depending on internal/simnet.
type fakeNetwork struct {
	mu      sync.Mutex
	waiting map[[2]int]*waiter
	queued  map[[2]int][]byte
}

type waiter struct {
	buf     []byte
	pending *transport.PendingCounter
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		waiting: make(map[[2]int]*waiter),
		queued:  make(map[[2]int][]byte),
	}
}

func (n *fakeNetwork) rankTransport(rank int) *fakeTransport {
	return &fakeTransport{net: n, rank: rank}
}

type fakeTransport struct {
	net  *fakeNetwork
	rank int
}

func (t *fakeTransport) SendNB(buf []byte, count int, dt reduce.Datatype, mtype transport.MemType, peer int, tm *team.Team, pending *transport.PendingCounter) error {
	pending.Add(1)
	cp := append([]byte(nil), buf[:count*reduce.Size(dt)]...)
	key := [2]int{t.rank, peer}
	t.net.mu.Lock()
	if w, ok := t.net.waiting[key]; ok {
		delete(t.net.waiting, key)
		t.net.mu.Unlock()
		copy(w.buf, cp)
		w.pending.Complete(nil)
		pending.Complete(nil)
		return nil
	}
	t.net.queued[key] = cp
	t.net.mu.Unlock()
	pending.Complete(nil)
	return nil
}

func (t *fakeTransport) RecvNB(buf []byte, count int, dt reduce.Datatype, mtype transport.MemType, peer int, tm *team.Team, pending *transport.PendingCounter) error {
	pending.Add(1)
	key := [2]int{peer, t.rank}
	t.net.mu.Lock()
	if msg, ok := t.net.queued[key]; ok {
		delete(t.net.queued, key)
		t.net.mu.Unlock()
		copy(buf, msg)
		pending.Complete(nil)
		return nil
	}
	t.net.waiting[key] = &waiter{buf: buf, pending: pending}
	t.net.mu.Unlock()
	return nil
}

func (t *fakeTransport) Test(pending *transport.PendingCounter) error {
	return transport.DefaultTest(pending)
}

func floatBuf(v float64, count int) []byte {
	buf := make([]byte, count*8)
	bits := math.Float64bits(v)
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], bits)
	}
	return buf
}

func decodeFloats(buf []byte, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

// runReduceScenario drives a full size-rank reduce of count elements
// with the given radix/root to completion (every rank's state machine
// pumped on its own goroutine) and returns the root's result.
func runReduceScenario(t *testing.T, size, radix, root, count int) []float64 {
	t.Helper()
	net := newFakeNetwork()
	endpoints := make([]team.Endpoint, size)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	result := make([]byte, count*8)

	for r := 0; r < size; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm, err := team.New(r, size, endpoints)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			dst := make([]byte, count*8)
			if r == root {
				dst = result
			}
			tk, err := task.New(tm, task.Args{
				Op:       reduce.Sum,
				Datatype: reduce.Float64,
				Count:    count,
				Src:      floatBuf(float64(r+1), count),
				Dst:      dst,
				Root:     root,
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			tr := net.rankTransport(r)
			err = Start(tk, tr, radix)
			for status.Is(err, status.InProgress) {
				err = Progress(tk, tr)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if err := Finalize(tk); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("reduce scenario failed: %v", firstErr)
	}
	return decodeFloats(result, count)
}

func expectedSum(size int) float64 {
	total := 0.0
	for r := 0; r < size; r++ {
		total += float64(r + 1)
	}
	return total
}

func TestReducePowerOfRadix(t *testing.T) {
	// size == 8, radix == 2: a perfect binary tree.
	got := runReduceScenario(t, 8, 2, 0, 4)
	want := expectedSum(8)
	for i, v := range got {
		if v != want {
			t.Errorf("elem %d: got %v want %v", i, v, want)
		}
	}
}

func TestReduceNonPowerOfRadix(t *testing.T) {
	// size == 15, radix == 2: the last rank is the S3 childless-leaf
	// edge case exercised by isLeaf's vr == size-1 clause.
	got := runReduceScenario(t, 15, 2, 0, 3)
	want := expectedSum(15)
	for i, v := range got {
		if v != want {
			t.Errorf("elem %d: got %v want %v", i, v, want)
		}
	}
}

func TestReduceNonZeroRoot(t *testing.T) {
	got := runReduceScenario(t, 6, 3, 4, 2)
	want := expectedSum(6)
	for i, v := range got {
		if v != want {
			t.Errorf("elem %d: got %v want %v", i, v, want)
		}
	}
}

func TestReduceRadixThree(t *testing.T) {
	got := runReduceScenario(t, 9, 3, 0, 5)
	want := expectedSum(9)
	for i, v := range got {
		if v != want {
			t.Errorf("elem %d: got %v want %v", i, v, want)
		}
	}
}

func TestReduceSingleRankTeam(t *testing.T) {
	// spec §8: a single-rank team's reduce must still produce dst ==
	// src (see finishMulti's team-size-1 special case).
	got := runReduceScenario(t, 1, 2, 0, 4)
	want := expectedSum(1)
	for i, v := range got {
		if v != want {
			t.Errorf("elem %d: got %v want %v", i, v, want)
		}
	}
}

func TestVrankRoundTrip(t *testing.T) {
	size, root := 7, 3
	for rank := 0; rank < size; rank++ {
		vr := vrank(rank, root, size)
		if got := unvrank(vr, root, size); got != rank {
			t.Errorf("unvrank(vrank(%d)) = %d, want %d", rank, got, rank)
		}
	}
}

func TestMaxDist(t *testing.T) {
	cases := []struct{ size, radix, want int }{
		{1, 2, 1},
		{2, 2, 2},
		{5, 2, 8},
		{8, 2, 8},
		{9, 3, 9},
		{10, 3, 27},
	}
	for _, c := range cases {
		if got := maxDist(c.size, c.radix); got != c.want {
			t.Errorf("maxDist(%d,%d) = %d, want %d", c.size, c.radix, got, c.want)
		}
	}
}

func TestStartRejectsRadixBelowTwo(t *testing.T) {
	tm, err := team.New(0, 2, []team.Endpoint{nil, nil})
	if err != nil {
		t.Fatalf("team.New: %v", err)
	}
	tk, err := task.New(tm, task.Args{Datatype: reduce.Float64, Count: 1, Src: floatBuf(1, 1), Dst: make([]byte, 8)})
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	if err := Start(tk, net2(t), 1); err == nil {
		t.Fatalf("expected error for radix < 2")
	}
}

func net2(t *testing.T) transport.Transport {
	t.Helper()
	return newFakeNetwork().rankTransport(0)
}
