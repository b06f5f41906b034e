// elzip: a high-performance tool for parallel block compression.
// Copyright (c) 2020-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package scheduler

import (
	"container/heap"
	"sync"
)

// packageHeap is a min-heap of packages in queue order.
type packageHeap []*Package

func (h packageHeap) Len() int           { return len(h) }
func (h packageHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h packageHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *packageHeap) Push(x interface{}) {
	*h = append(*h, x.(*Package))
}

func (h *packageHeap) Pop() interface{} {
	old := *h
	n := len(old) - 1
	pkg := old[n]
	old[n] = nil
	*h = old[:n]
	return pkg
}

// A Queue is an unbounded, blocking, terminatable priority queue of
// packages. It is safe for concurrent use.
type Queue struct {
	mutex      sync.Mutex
	nonEmpty   *sync.Cond
	packages   packageHeap
	lastID     uint64
	terminated bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.nonEmpty = sync.NewCond(&q.mutex)
	return q
}

// Enqueue assigns pkg a fresh package id and inserts it. It never
// blocks. It reports false, and drops pkg, if the queue is already
// terminated.
func (q *Queue) Enqueue(pkg *Package) bool {
	q.mutex.Lock()
	if q.terminated {
		q.mutex.Unlock()
		return false
	}
	q.lastID++
	pkg.ID = q.lastID
	heap.Push(&q.packages, pkg)
	q.mutex.Unlock()
	q.nonEmpty.Signal()
	return true
}

// Dequeue removes and returns the first package, blocking while the
// queue is empty. Once the queue is terminated, Dequeue returns
// (nil, false) immediately, even if packages are left.
func (q *Queue) Dequeue() (*Package, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for !q.terminated && len(q.packages) == 0 {
		q.nonEmpty.Wait()
	}
	if q.terminated {
		return nil, false
	}
	return heap.Pop(&q.packages).(*Package), true
}

// TryDequeue is Dequeue without blocking. It also reports false if
// the queue is empty.
func (q *Queue) TryDequeue() (*Package, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.terminated || len(q.packages) == 0 {
		return nil, false
	}
	return heap.Pop(&q.packages).(*Package), true
}

// Terminate wakes all blocked dequeuers. It is idempotent.
func (q *Queue) Terminate() {
	q.mutex.Lock()
	if q.terminated {
		q.mutex.Unlock()
		return
	}
	q.terminated = true
	q.mutex.Unlock()
	q.nonEmpty.Broadcast()
}

// Terminated reports whether Terminate has been called.
func (q *Queue) Terminated() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.terminated
}

// Len returns the number of packages waiting in the queue.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.packages)
}

// LastID returns the package id most recently assigned, or 0.
func (q *Queue) LastID() uint64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.lastID
}
