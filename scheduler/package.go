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

import "github.com/exascience/elzip/internal"

type (
	// Priority orders packages in the queue. Lower values are
	// dispatched first.
	Priority int

	// DispatcherID identifies a registered Dispatcher.
	DispatcherID int

	// A Package is one unit of schedulable work. Its fields must not
	// be changed once it is enqueued, except for ID, which the queue
	// assigns.
	Package struct {
		Priority   Priority
		Dispatcher DispatcherID
		// ID is unique and strictly increasing per queue, assigned
		// at enqueue time.
		ID uint64
		// SubID distinguishes sibling packages created by the same
		// parent operation.
		SubID   int
		Payload interface{}
	}
)

// Hash implements the pargo sync.Hasher interface.
func (id DispatcherID) Hash() uint64 {
	return internal.IntHash(int64(id))
}

// NewPackage returns a package for the given dispatcher.
func NewPackage(priority Priority, dispatcher DispatcherID, payload interface{}) *Package {
	return &Package{Priority: priority, Dispatcher: dispatcher, Payload: payload}
}

// NewSubPackage returns a package that is the subID-th sibling of a
// common parent operation.
func NewSubPackage(priority Priority, dispatcher DispatcherID, subID int, payload interface{}) *Package {
	return &Package{Priority: priority, Dispatcher: dispatcher, SubID: subID, Payload: payload}
}

// before is the queue order: priority ascending, then package id
// ascending.
func (pkg *Package) before(other *Package) bool {
	if pkg.Priority != other.Priority {
		return pkg.Priority < other.Priority
	}
	return pkg.ID < other.ID
}
