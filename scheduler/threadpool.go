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
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	psync "github.com/exascience/pargo/sync"
	"github.com/rs/zerolog"

	"github.com/exascience/elzip/internal"
)

type (
	// A Control is handed to each dispatch call. It lets a dispatcher
	// chain follow-on work or stop the pool.
	Control interface {
		Enqueue(pkg *Package)
		RequestTermination()
	}

	// A Dispatcher handles the packages enqueued for its id. Dispatch
	// may be called concurrently from several workers.
	Dispatcher interface {
		Dispatch(pkg *Package, ctl Control) error
	}

	// DispatcherFunc adapts a function to the Dispatcher interface.
	DispatcherFunc func(pkg *Package, ctl Control) error

	// WorkerState is the state of one worker goroutine.
	WorkerState int32

	// Stats are cumulative counters of a ThreadPool.
	Stats struct {
		Threads    int
		Enqueued   uint64
		Dispatched uint64
		Failed     uint64
	}

	// A ThreadPool runs a fixed number of workers on one shared
	// priority queue.
	ThreadPool struct {
		queue       *Queue
		dispatchers *psync.Map
		sealed      int32
		states      []int32
		workers     sync.WaitGroup
		ctx         context.Context
		cancel      context.CancelFunc
		logger      zerolog.Logger

		errMutex sync.Mutex
		err      error
		errTaken bool

		enqueued, dispatched, failed uint64
	}
)

// Dispatch calls f(pkg, ctl).
func (f DispatcherFunc) Dispatch(pkg *Package, ctl Control) error {
	return f(pkg, ctl)
}

const (
	Starting WorkerState = iota
	Waiting
	Running
	Exited
)

func (s WorkerState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// New starts a pool of the given number of worker goroutines; a
// non-positive number means runtime.GOMAXPROCS(0). New returns only
// after every worker is running.
func New(threads int) *ThreadPool {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &ThreadPool{
		queue:       NewQueue(),
		dispatchers: psync.NewMap(0),
		states:      make([]int32, threads),
		ctx:         ctx,
		cancel:      cancel,
		logger:      internal.Log.With().Str("component", "scheduler").Logger(),
	}
	var started sync.WaitGroup
	started.Add(threads)
	p.workers.Add(threads)
	for i := 0; i < threads; i++ {
		go p.work(i, &started)
	}
	started.Wait()
	p.logger.Debug().Int("threads", threads).Msg("thread pool started")
	return p
}

// Register installs d as the dispatcher for id. Registering an id
// twice, or registering after the first package has been enqueued, is
// a programmer error and panics.
func (p *ThreadPool) Register(id DispatcherID, d Dispatcher) {
	if atomic.LoadInt32(&p.sealed) != 0 {
		internal.Panicf("scheduler: dispatcher %v registered after the first enqueue", id)
	}
	if _, loaded := p.dispatchers.LoadOrStore(id, d); loaded {
		internal.Panicf("scheduler: dispatcher %v registered twice", id)
	}
}

// Registered reports whether a dispatcher is registered for id.
func (p *ThreadPool) Registered(id DispatcherID) bool {
	_, ok := p.dispatchers.Load(id)
	return ok
}

// Enqueue schedules pkg. It never blocks. Enqueueing a package for an
// unregistered dispatcher panics. Packages enqueued after termination
// are dropped.
func (p *ThreadPool) Enqueue(pkg *Package) {
	atomic.StoreInt32(&p.sealed, 1)
	if _, ok := p.dispatchers.Load(pkg.Dispatcher); !ok {
		internal.Panicf("scheduler: no dispatcher registered for id %v", pkg.Dispatcher)
	}
	if p.queue.Enqueue(pkg) {
		atomic.AddUint64(&p.enqueued, 1)
	}
}

// Terminate stops the pool: blocked workers wake up and exit, and
// queued packages are no longer dispatched. Dispatch calls in progress
// are not interrupted. Terminate is idempotent.
func (p *ThreadPool) Terminate() {
	p.cancel()
	p.queue.Terminate()
}

// RequestTermination implements Control.
func (p *ThreadPool) RequestTermination() {
	p.Terminate()
}

// Done returns a channel that is closed once the pool is terminated.
func (p *ThreadPool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Context returns a context that is cancelled once the pool is
// terminated.
func (p *ThreadPool) Context() context.Context {
	return p.ctx
}

// Join waits for all workers to exit. It does not terminate the pool
// itself. The first error returned by a dispatcher, if any, is
// returned by the first call to Join only.
func (p *ThreadPool) Join() error {
	p.workers.Wait()
	p.errMutex.Lock()
	defer p.errMutex.Unlock()
	if p.errTaken {
		return nil
	}
	p.errTaken = true
	return p.err
}

// Err returns the first recorded dispatcher error without consuming it.
func (p *ThreadPool) Err() error {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()
	return p.err
}

// SetErr records err as a fatal error of the pool, unless an earlier
// error is already recorded, and terminates the pool. It reports
// whether err was recorded.
func (p *ThreadPool) SetErr(err error) bool {
	p.errMutex.Lock()
	first := p.err == nil
	if first {
		p.err = err
	}
	p.errMutex.Unlock()
	if first {
		p.logger.Error().Err(err).Msg("thread pool failed")
	}
	p.Terminate()
	return first
}

// Stats returns a snapshot of the pool's counters.
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Threads:    len(p.states),
		Enqueued:   atomic.LoadUint64(&p.enqueued),
		Dispatched: atomic.LoadUint64(&p.dispatched),
		Failed:     atomic.LoadUint64(&p.failed),
	}
}

// States returns the current state of each worker.
func (p *ThreadPool) States() []WorkerState {
	states := make([]WorkerState, len(p.states))
	for i := range p.states {
		states[i] = WorkerState(atomic.LoadInt32(&p.states[i]))
	}
	return states
}

// Pending returns the number of packages waiting to be dispatched.
func (p *ThreadPool) Pending() int {
	return p.queue.Len()
}

func (p *ThreadPool) setState(worker int, state WorkerState) {
	atomic.StoreInt32(&p.states[worker], int32(state))
}

func (p *ThreadPool) work(worker int, started *sync.WaitGroup) {
	defer p.workers.Done()
	defer p.setState(worker, Exited)
	p.setState(worker, Waiting)
	started.Done()
	for {
		pkg, ok := p.queue.Dequeue()
		if !ok {
			p.logger.Debug().Int("worker", worker).Msg("worker exited")
			return
		}
		d, found := p.dispatchers.Load(pkg.Dispatcher)
		if !found {
			internal.Panicf("scheduler: no dispatcher registered for id %v", pkg.Dispatcher)
		}
		p.setState(worker, Running)
		err := d.(Dispatcher).Dispatch(pkg, p)
		atomic.AddUint64(&p.dispatched, 1)
		p.setState(worker, Waiting)
		if err != nil {
			atomic.AddUint64(&p.failed, 1)
			p.SetErr(err)
		}
	}
}
