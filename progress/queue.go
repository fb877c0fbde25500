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

// Package progress implements the progress queue of spec §4.E: an
// ordered container of in-flight tasks, pumped once per call, that
// removes any task reporting completion or error and retains the
// rest for the next pump.
package progress

import "sync"

// Task is the minimal shape the queue needs: something that can be
// advanced once and reports whether it is still in flight. knomial's
// task.Task (paired with a Progress function) satisfies this via a
// small adapter — see rtctx.collectiveHandle.
type Task interface {
	// Advance runs one progress slice. It returns (false, nil) while
	// still in flight, (true, nil) on success, or (true, err) on a
	// terminal error.
	Advance() (done bool, err error)
}

// Queue is the FIFO of in-flight tasks. ThreadMode selects whether
// mutations are serialized: thread_mode=single leaves it unlocked
// (NewQueue(false, false)), thread_mode=multi guards Enqueue/Pump with a
// mutex (NewQueue(true, false)) — the "lock-free queue gated by a config
// flag" of spec §4.E is the lockFree variant below.
type Queue struct {
	mu       sync.Mutex
	locked   bool
	tasks    []Task
	lockFree *lockFreeQueue
}

// NewQueue constructs a Queue. locked selects the mutex-guarded
// variant (thread_mode=multi, lock_free_progress_q=0); lockFree
// selects the variant that CAS-swaps a pointer to a copied slice
// (thread_mode=single, or
// lock_free_progress_q=1 under multi).
func NewQueue(locked, lockFree bool) *Queue {
	q := &Queue{locked: locked}
	if lockFree {
		q.lockFree = newLockFreeQueue()
	}
	return q
}

// Enqueue appends a task handle to the queue.
func (q *Queue) Enqueue(t Task) {
	if q.lockFree != nil {
		q.lockFree.push(t)
		return
	}
	if q.locked {
		q.mu.Lock()
		defer q.mu.Unlock()
	}
	q.tasks = append(q.tasks, t)
}

// Pump visits every queued task once, removing any that complete
// (successfully or with an error), and returns how many completed.
// The first terminal error encountered is returned alongside the
// completion count, but every other task is still given its slice
// this pump — spec §5's ordering guarantee is per-task posting order,
// not global lockstep.
func (q *Queue) Pump() (int, error) {
	if q.lockFree != nil {
		return q.lockFree.pump()
	}
	if q.locked {
		q.mu.Lock()
		defer q.mu.Unlock()
	}
	return pumpSlice(&q.tasks)
}

func pumpSlice(tasks *[]Task) (int, error) {
	var firstErr error
	completed := 0
	remaining := (*tasks)[:0]
	for _, t := range *tasks {
		done, err := t.Advance()
		if done {
			completed++
			if err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		remaining = append(remaining, t)
	}
	*tasks = remaining
	return completed, firstErr
}

// Len reports the number of tasks currently queued.
func (q *Queue) Len() int {
	if q.lockFree != nil {
		return q.lockFree.len()
	}
	if q.locked {
		q.mu.Lock()
		defer q.mu.Unlock()
	}
	return len(q.tasks)
}

// Finalize removes every task still queued and returns them to the
// caller. It does not check that the queue was empty, and the drained
// tasks are neither advanced nor given a terminal status.
func (q *Queue) Finalize() []Task {
	if q.lockFree != nil {
		return q.lockFree.drain()
	}
	if q.locked {
		q.mu.Lock()
		defer q.mu.Unlock()
	}
	drained := q.tasks
	q.tasks = nil
	return drained
}
