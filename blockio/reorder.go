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

package blockio

import (
	"sync"

	"github.com/exascience/elzip/freelist"
)

// reorder holds blocks that complete out of order until it is their
// turn. Blocks are taken strictly in id order, starting at 0.
//
// At most one party releases blocks at a time: complete reports true
// when it hands the release duty to its caller, and take gives it up
// again when the next block is missing.
type reorder struct {
	mutex     sync.Mutex
	next      uint64
	pending   map[uint64]freelist.Handle[*Block]
	releasing bool
}

func newReorder() reorder {
	return reorder{pending: make(map[uint64]freelist.Handle[*Block])}
}

// complete adds a finished block. It reports whether the caller must
// start releasing blocks.
func (r *reorder) complete(id uint64, h freelist.Handle[*Block]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.pending[id] = h
	if id == r.next && !r.releasing {
		r.releasing = true
		return true
	}
	return false
}

// take removes the next block in order. If it is not available yet,
// take reports false and gives up the release duty.
func (r *reorder) take() (freelist.Handle[*Block], bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	h, ok := r.pending[r.next]
	if !ok {
		r.releasing = false
		return h, false
	}
	delete(r.pending, r.next)
	r.next++
	return h, true
}

// waiting returns the number of blocks that completed ahead of their
// turn.
func (r *reorder) waiting() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.pending)
}
