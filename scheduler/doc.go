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

// Package scheduler is a priority work scheduler: a fixed number of
// worker goroutines consume work packages from one shared priority
// queue and hand each of them to the dispatcher registered for the
// package's dispatcher id.
//
// Dispatchers are registered on a ThreadPool before the first package
// is enqueued, and the registry is never changed afterwards. A
// dispatcher receives the package and a Control, through which it can
// enqueue follow-on work or request termination of the pool.
//
// Packages are ordered by priority (lower values first) and then by
// their package id, which the queue assigns on enqueue, so packages of
// equal priority are dispatched in FIFO order. There is no work
// stealing and no retry: every package is dispatched at most once.
//
// The first error returned by a dispatcher is recorded, the pool is
// terminated, and Join returns that error to its caller.
package scheduler
