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

// Package freelist provides pools of reusable objects, such as block
// buffers and codec instances, that are handed out as owned handles.
//
// A value obtained from a pool belongs to the holder of its handle
// until the handle is put back. Putting back a handle that is not
// checked out is a programmer error and panics.
package freelist

import (
	"context"
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/elzip/internal"
)

// ErrClosed is returned by GetContext on a closed pool.
var ErrClosed = errors.New("freelist: pool closed")

// A Handle is an owned reference to one pooled value. The zero Handle
// is invalid.
type Handle[T any] struct {
	Value T
	index int
}

// Valid reports whether h was obtained from a pool.
func (h Handle[T]) Valid() bool {
	return h.index > 0
}

// arena is the bookkeeping shared by both pool variants: the values,
// a stack of free indices and a bitmap of checked-out indices.
type arena[T any] struct {
	values []T
	free   []int
	out    bitset.BitSet
}

func (a *arena[T]) add(v T) {
	a.free = append(a.free, len(a.values))
	a.values = append(a.values, v)
}

func (a *arena[T]) take() Handle[T] {
	n := len(a.free) - 1
	i := a.free[n]
	a.free = a.free[:n]
	a.out.Set(uint(i))
	return Handle[T]{Value: a.values[i], index: i + 1}
}

func (a *arena[T]) give(h Handle[T]) {
	i := h.index - 1
	if i < 0 || i >= len(a.values) || !a.out.Test(uint(i)) {
		internal.Panicf("freelist: put of a handle that is not checked out")
	}
	a.out.Clear(uint(i))
	a.values[i] = h.Value
	a.free = append(a.free, i)
}

// A Bounded pool holds a fixed number of values. Get blocks while all
// of them are checked out.
type Bounded[T any] struct {
	mutex     sync.Mutex
	available *sync.Cond
	arena     arena[T]
	closed    bool
}

// NewBounded returns a pool of capacity values created by factory.
func NewBounded[T any](capacity int, factory func() T) *Bounded[T] {
	if capacity <= 0 {
		internal.Panicf("freelist: invalid capacity %v", capacity)
	}
	p := &Bounded[T]{}
	p.available = sync.NewCond(&p.mutex)
	for i := 0; i < capacity; i++ {
		p.arena.add(factory())
	}
	return p
}

// Get returns a value, blocking until one is available. Calling Get on
// a closed pool panics.
func (p *Bounded[T]) Get() Handle[T] {
	h, err := p.GetContext(context.Background())
	if err != nil {
		internal.Panicf("freelist: %v", err)
	}
	return h
}

// GetContext returns a value, blocking until one is available, ctx is
// done, or the pool is closed.
func (p *Bounded[T]) GetContext(ctx context.Context) (Handle[T], error) {
	stop := context.AfterFunc(ctx, func() {
		p.mutex.Lock()
		p.available.Broadcast()
		p.mutex.Unlock()
	})
	defer stop()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for {
		if p.closed {
			return Handle[T]{}, ErrClosed
		}
		if len(p.arena.free) > 0 {
			return p.arena.take(), nil
		}
		if err := ctx.Err(); err != nil {
			return Handle[T]{}, err
		}
		p.available.Wait()
	}
}

// TryGet returns a value if one is available without blocking.
func (p *Bounded[T]) TryGet() (Handle[T], bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed || len(p.arena.free) == 0 {
		return Handle[T]{}, false
	}
	return p.arena.take(), true
}

// Put makes the value of h available again. h must be checked out.
func (p *Bounded[T]) Put(h Handle[T]) {
	p.put(h)
	p.available.Signal()
}

func (p *Bounded[T]) put(h Handle[T]) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.arena.give(h)
}

// Close wakes all blocked callers of GetContext, which return
// ErrClosed. Values can still be put back after Close.
func (p *Bounded[T]) Close() {
	p.mutex.Lock()
	p.closed = true
	p.mutex.Unlock()
	p.available.Broadcast()
}

// Capacity returns the fixed number of values in the pool.
func (p *Bounded[T]) Capacity() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return uint64(len(p.arena.values))
}

// Available returns the number of values not checked out.
func (p *Bounded[T]) Available() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.arena.free)
}

// Outstanding returns the number of values checked out.
func (p *Bounded[T]) Outstanding() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return int(p.arena.out.Count())
}

// Counts returns Outstanding and Available in one consistent snapshot.
func (p *Bounded[T]) Counts() (outstanding, available int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return int(p.arena.out.Count()), len(p.arena.free)
}

// A Growing pool never blocks: when it runs out of values, it doubles
// its capacity with values created by its factory. Its capacity never
// shrinks.
type Growing[T any] struct {
	mutex   sync.Mutex
	factory func() T
	arena   arena[T]
}

// NewGrowing returns a pool that starts with initial values (at least
// one) created by factory.
func NewGrowing[T any](initial int, factory func() T) *Growing[T] {
	if initial <= 0 {
		initial = 1
	}
	p := &Growing[T]{factory: factory}
	for i := 0; i < initial; i++ {
		p.arena.add(factory())
	}
	return p
}

// Get returns a value, growing the pool if none is available.
func (p *Growing[T]) Get() Handle[T] {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.arena.free) == 0 {
		for n := len(p.arena.values); n > 0; n-- {
			p.arena.add(p.factory())
		}
	}
	return p.arena.take()
}

// Put makes the value of h available again. h must be checked out.
func (p *Growing[T]) Put(h Handle[T]) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.arena.give(h)
}

// Capacity returns the current number of values in the pool.
func (p *Growing[T]) Capacity() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return uint64(len(p.arena.values))
}

// Available returns the number of values not checked out.
func (p *Growing[T]) Available() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.arena.free)
}

// Outstanding returns the number of values checked out.
func (p *Growing[T]) Outstanding() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return int(p.arena.out.Count())
}
