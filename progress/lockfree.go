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

package progress

import "sync/atomic"

// lockFreeQueue is the lock_free_progress_q=1 variant of spec §4.E:
// enqueue is a CAS-retried swap of a pointer to a slice, so a
// single-producer Pump never blocks behind a mutex a concurrent
// Enqueue might be holding. atomic.Value.CompareAndSwap compares by
// interface equality, and slices aren't comparable, so the swapped
// value must be a pointer (*[]Task), never a bare slice.
type lockFreeQueue struct {
	ptr atomic.Value // holds *[]Task
}

func newLockFreeQueue() *lockFreeQueue {
	q := &lockFreeQueue{}
	empty := []Task{}
	q.ptr.Store(&empty)
	return q
}

func (q *lockFreeQueue) push(t Task) {
	for {
		old := q.ptr.Load().(*[]Task)
		next := make([]Task, len(*old)+1)
		copy(next, *old)
		next[len(*old)] = t
		if q.ptr.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (q *lockFreeQueue) pump() (int, error) {
	cur := q.ptr.Load().(*[]Task)
	snapshot := make([]Task, len(*cur))
	copy(snapshot, *cur)

	completed, err := pumpSlice(&snapshot)

	for {
		old := q.ptr.Load().(*[]Task)
		// Any tasks enqueued concurrently during this pump (beyond the
		// snapshot we just took) are appended after our survivors.
		var grown []Task
		if len(*old) > len(*cur) {
			grown = (*old)[len(*cur):]
		}
		next := make([]Task, len(snapshot)+len(grown))
		copy(next, snapshot)
		copy(next[len(snapshot):], grown)
		if q.ptr.CompareAndSwap(old, &next) {
			break
		}
	}
	return completed, err
}

func (q *lockFreeQueue) len() int {
	return len(*q.ptr.Load().(*[]Task))
}

func (q *lockFreeQueue) drain() []Task {
	empty := []Task{}
	old := q.ptr.Swap(&empty).(*[]Task)
	return *old
}
