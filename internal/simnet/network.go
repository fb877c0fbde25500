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

// Package simnet is an in-process, channel-free point-to-point fabric
// standing in for the "concrete transport (real network fabrics)"
// spec §1 puts out of scope, so this module's own tests and
// cmd/knprobe have something concrete to drive the state machines
// against. It plays the role cmd/devp2p/internal/probetest's Suite
// plays for protocol conformance testing: a harness, not part of the
// library's public surface.
package simnet

import (
	"sync"

	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/team"
	"github.com/probeum/kncoll/transport"
)

// peerKey identifies one ordered channel between two ranks; spec §5
// requires point-to-point operations posted to the same peer to
// complete in posted order, so delivery and matching are both kept
// per-key FIFO.
type peerKey struct{ from, to int }

type inboundMsg struct {
	buf []byte
}

type recvWaiter struct {
	buf     []byte
	pending *transport.PendingCounter
}

// Network is a shared fabric for size ranks in one process.
type Network struct {
	mu      sync.Mutex
	size    int
	waiting map[peerKey][]*recvWaiter
	queued  map[peerKey][]inboundMsg
}

// NewNetwork constructs a Network for size ranks.
func NewNetwork(size int) *Network {
	return &Network{
		size:    size,
		waiting: make(map[peerKey][]*recvWaiter),
		queued:  make(map[peerKey][]inboundMsg),
	}
}

// Transport returns the transport.Transport facade for one rank.
func (n *Network) Transport(rank int) transport.Transport {
	return &rankTransport{net: n, rank: rank}
}

type rankTransport struct {
	net  *Network
	rank int
}

// SendNB copies buf and hands it to the network before returning; the
// send completes (from the caller's point of view) once handed off,
// independent of whether a matching receive has been posted yet.
func (t *rankTransport) SendNB(buf []byte, count int, dt reduce.Datatype, mtype transport.MemType, peer int, tm *team.Team, pending *transport.PendingCounter) error {
	pending.Add(1)
	n := count * reduce.Size(dt)
	cp := append([]byte(nil), buf[:n]...)
	key := peerKey{from: t.rank, to: peer}
	t.net.deliver(key, inboundMsg{buf: cp}, pending)
	return nil
}

// RecvNB posts a non-blocking receive, satisfied immediately if a
// matching send already arrived, or parked until one does.
func (t *rankTransport) RecvNB(buf []byte, count int, dt reduce.Datatype, mtype transport.MemType, peer int, tm *team.Team, pending *transport.PendingCounter) error {
	pending.Add(1)
	key := peerKey{from: peer, to: t.rank}
	t.net.awaitRecv(key, buf, pending)
	return nil
}

func (t *rankTransport) Test(pending *transport.PendingCounter) error {
	return transport.DefaultTest(pending)
}

func (n *Network) deliver(key peerKey, msg inboundMsg, sendPending *transport.PendingCounter) {
	n.mu.Lock()
	waiters := n.waiting[key]
	if len(waiters) > 0 {
		w := waiters[0]
		n.waiting[key] = waiters[1:]
		n.mu.Unlock()
		copy(w.buf, msg.buf)
		w.pending.Complete(nil)
		sendPending.Complete(nil)
		return
	}
	n.queued[key] = append(n.queued[key], msg)
	n.mu.Unlock()
	sendPending.Complete(nil)
}

func (n *Network) awaitRecv(key peerKey, buf []byte, pending *transport.PendingCounter) {
	n.mu.Lock()
	msgs := n.queued[key]
	if len(msgs) > 0 {
		msg := msgs[0]
		n.queued[key] = msgs[1:]
		n.mu.Unlock()
		copy(buf, msg.buf)
		pending.Complete(nil)
		return
	}
	n.waiting[key] = append(n.waiting[key], &recvWaiter{buf: buf, pending: pending})
	n.mu.Unlock()
}
