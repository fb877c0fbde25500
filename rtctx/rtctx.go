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

// Package rtctx implements the runtime context of spec §4.F: the
// progress queue, the user progress-callback registry, the named
// component registry, and the address-exchange bootstrap, all owned
// by one long-lived handle per process. Named rtctx, not context, to
// avoid shadowing the standard library package of the same name.
package rtctx

import (
	"reflect"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"

	"github.com/probeum/kncoll/config"
	"github.com/probeum/kncoll/knomial"
	"github.com/probeum/kncoll/log"
	"github.com/probeum/kncoll/oob"
	"github.com/probeum/kncoll/progress"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/task"
	"github.com/probeum/kncoll/team"
	"github.com/probeum/kncoll/transport"
)

// ID is the stable numeric identifier of spec §4.F: a per-process
// identifier paired with a monotonically increasing sequence number,
// exactly original_source's ucc_context_id_t.
type ID struct {
	ProcID uuid.UUID
	Seq    uint32
}

// processID is generated once per process, the way the teacher's
// node-identity code (p2p/enode) derives a stable local id at
// startup rather than per object.
var (
	processID  = uuid.New()
	seqCounter uint32
)

func nextID() ID {
	return ID{ProcID: processID, Seq: atomic.AddUint32(&seqCounter, 1)}
}

// ProgressFunc is a user progress callback, registered and
// deregistered by (fn, arg) identity per spec §4.F.
type ProgressFunc func(arg interface{}) error

type callbackEntry struct {
	fn  ProgressFunc
	arg interface{}
}

// simnetComponentID is the single component id this module packs
// into its address records (spec §4.F SUPPLEMENTED FEATURES #2): a
// context with more component kinds would list more entries here.
const simnetComponentID = 1

// Context is the top-level runtime handle of spec §4.F.
type Context struct {
	ID  ID
	Cfg config.ContextConfig

	mu        sync.Mutex
	callbacks []callbackEntry
	registry  *lru.Cache // name -> team.Endpoint

	queue *progress.Queue

	oobEngine    *oob.Engine
	addrStorage  *oob.AddrStorage
	localPayload []byte

	serviceTeam *team.Team

	packedAddr []byte
	addrReady  bool

	log log.Logger
}

// New constructs a Context. threadModeMulti selects serialized queue
// mutation (spec §4.E/§5); localPayload is this process's own packed
// transport address, handed to the address-exchange engine unchanged.
func New(cfg config.ContextConfig, threadModeMulti bool, localPayload []byte, oobCbs oob.CollCallbacks) (*Context, error) {
	capacity := cfg.TeamIDCapacity()
	if capacity <= 0 {
		capacity = 1
	}
	registry, err := lru.New(capacity)
	if err != nil {
		return nil, status.Wrap(status.NoMemory, status.AllocationFatal, "failed to allocate component registry", err)
	}

	id := nextID()
	engine := oob.NewEngine(team.CtxID{ProcID: id.ProcID, Seq: id.Seq}, localPayload, oobCbs)

	return &Context{
		ID:           id,
		Cfg:          cfg,
		registry:     registry,
		queue:        progress.NewQueue(threadModeMulti, cfg.LockFreeProgressQ),
		oobEngine:    engine,
		addrStorage:  &oob.AddrStorage{},
		localPayload: localPayload,
		log:          log.New("pkg", "rtctx", "id", id.Seq),
	}, nil
}

// Progress runs every registered callback in insertion order, then
// pumps the queue once, exactly spec §4.F's progress entry point.
func (c *Context) Progress() error {
	c.mu.Lock()
	cbs := append([]callbackEntry(nil), c.callbacks...)
	c.mu.Unlock()

	for _, cb := range cbs {
		if err := cb.fn(cb.arg); err != nil {
			return err
		}
	}
	_, err := c.queue.Pump()
	return err
}

// ProgressRegister appends a callback entry.
func (c *Context) ProgressRegister(fn ProgressFunc, arg interface{}) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, callbackEntry{fn: fn, arg: arg})
	c.mu.Unlock()
}

// ProgressDeregister removes the first entry matching (fn, arg) by
// identity, per spec §4.F.
func (c *Context) ProgressDeregister(fn ProgressFunc, arg interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := callbackEntry{fn: fn, arg: arg}
	for i, cb := range c.callbacks {
		if sameCallback(cb, target) {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
}

// sameCallback compares callback entries by function pointer and
// best-effort argument equality; arg types that are not comparable
// (slices, maps, funcs) simply never match a deregister call, the way
// such a mismatch would be a caller bug in the original C API too.
func sameCallback(a, b callbackEntry) bool {
	if reflect.ValueOf(a.fn).Pointer() != reflect.ValueOf(b.fn).Pointer() {
		return false
	}
	return safeEqual(a.arg, b.arg)
}

func safeEqual(a, b interface{}) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// GetAttr lazily computes and caches this context's packed transport
// address, per spec §4.F.
func (c *Context) GetAttr() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addrReady {
		return c.packedAddr, nil
	}
	addr, err := c.packAddr()
	if err != nil {
		return nil, err
	}
	c.packedAddr = addr
	c.addrReady = true
	return addr, nil
}

// packAddr concatenates per-component address blocks behind a header
// of {id, offset} pairs, mirroring original_source's
// ucc_context_pack_addr (spec §4.F SUPPLEMENTED FEATURES #2). This
// module has exactly one component kind, so the loop runs once, but
// the wire shape (team.AddressRecord.Components) supports more.
func (c *Context) packAddr() ([]byte, error) {
	rec := team.AddressRecord{
		CtxID:      team.CtxID{ProcID: c.ID.ProcID, Seq: c.ID.Seq},
		Components: []team.ComponentAddr{{ID: simnetComponentID, Offset: 0}},
		Payload:    c.localPayload,
	}
	buf := make([]byte, rec.WireSize())
	if err := rec.Marshal(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TLContextGet looks up an underlying transport endpoint by name, per
// spec §4.F.
func (c *Context) TLContextGet(name string) (team.Endpoint, bool) {
	v, ok := c.registry.Get(name)
	if !ok {
		return nil, false
	}
	return v.(team.Endpoint), true
}

// RegisterTLContext makes a named transport endpoint available to a
// later TLContextGet, evicting the least-recently-used entry once the
// registry reaches the team-id-pool-derived capacity.
func (c *Context) RegisterTLContext(name string, ep team.Endpoint) {
	c.registry.Add(name, ep)
}

// AdvanceBootstrap drives the address-exchange engine one step. It
// must be re-entered (e.g. from the caller's own Progress loop) until
// it returns nil or a fatal error, per spec §4.G's suspension points.
func (c *Context) AdvanceBootstrap() error {
	return c.oobEngine.Advance(c.addrStorage)
}

// EnsureServiceTeam stands up the internal service team used as the
// OOB transport for later team creation, gated by the internal_oob
// tri-state, mirroring ucc_context_create's conditional bootstrap
// (spec §4.F SUPPLEMENTED FEATURES #1). Must be re-entered like
// AdvanceBootstrap until it returns nil or a fatal error.
func (c *Context) EnsureServiceTeam(tlName string) error {
	if c.Cfg.InternalOOB == config.InternalOOBOff {
		return nil
	}
	if c.serviceTeam != nil {
		return nil
	}
	if _, ok := c.TLContextGet(tlName); !ok {
		if c.Cfg.InternalOOB == config.InternalOOBForce {
			return status.New(status.NotFound, status.UserError, "internal_oob=force but no TL context available")
		}
		return nil
	}
	if err := c.AdvanceBootstrap(); err != nil {
		return err
	}
	tm, err := c.buildServiceTeamFromStorage()
	if err != nil {
		return err
	}
	c.serviceTeam = tm
	return nil
}

// buildServiceTeamFromStorage turns a completed address exchange into
// a Team via team.FromAddressExchange.
func (c *Context) buildServiceTeamFromStorage() (*team.Team, error) {
	s := c.addrStorage
	return team.FromAddressExchange(s.Rank, s.Size, s.AddrLen, s.Storage)
}

// ServiceTeam returns the internal service team once EnsureServiceTeam
// has completed, or nil before that.
func (c *Context) ServiceTeam() *team.Team { return c.serviceTeam }

// collectiveHandle adapts a knomial-driven task into progress.Task,
// so the progress package never needs to import knomial (the adapter
// progress.Task's doc comment points to).
type collectiveHandle struct {
	t  *task.Task
	tm transport.Transport
}

func (h *collectiveHandle) Advance() (bool, error) {
	err := knomial.Progress(h.t, h.tm)
	if err == nil {
		return true, nil
	}
	if status.Is(err, status.InProgress) {
		return false, nil
	}
	return true, err
}

// PostReduce starts a k-nomial reduce on t over tm, enqueuing it on
// this context's progress queue if the first slice does not complete
// synchronously. t.Ctx is set to this Context so callers can recover
// it from the task alone.
func (c *Context) PostReduce(t *task.Task, tm transport.Transport, radix int) error {
	t.Ctx = c
	err := knomial.Start(t, tm, radix)
	if err == nil {
		return nil
	}
	if status.Is(err, status.InProgress) {
		c.queue.Enqueue(&collectiveHandle{t: t, tm: tm})
		return status.ErrInProgress
	}
	return err
}

// Destroy tears down the service team — polling team.Destroy and
// interleaving c.Progress() until it returns OK, exactly
// original_source/src/core/ucc_context.c's `while (UCC_INPROGRESS ==
// status) { progress(ctx); status = ucc_team_destroy(team); }` — then
// releases the component registry and frees the queue and address
// storage, in that order, per spec §4.F.
func (c *Context) Destroy() error {
	if c.serviceTeam != nil {
		for {
			err := c.serviceTeam.Destroy()
			if err == nil {
				break
			}
			if !status.Is(err, status.InProgress) {
				return err
			}
			if err := c.Progress(); err != nil {
				return err
			}
		}
		c.serviceTeam = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Purge()
	c.queue.Finalize()
	c.addrStorage = nil
	return nil
}
