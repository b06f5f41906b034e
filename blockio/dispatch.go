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
	"github.com/rs/zerolog"

	"github.com/exascience/elzip/freelist"
	"github.com/exascience/elzip/internal"
	"github.com/exascience/elzip/scheduler"
)

// The dispatcher ids of the block pipelines.
const (
	ReadDispatcher scheduler.DispatcherID = 0x100 + iota
	DecodeDispatcher
	EncodeDispatcher
	WriteDispatcher
)

// Writing drains the pipelines, so it goes first. Reading fills them,
// so it goes last.
const (
	writePriority scheduler.Priority = 0
	codecPriority scheduler.Priority = 1
	readPriority  scheduler.Priority = 2
)

type (
	readerTask struct {
		r *Reader
		h freelist.Handle[*Block]
	}

	writerTask struct {
		w *Writer
		h freelist.Handle[*Block]
	}
)

// Register installs the block pipeline dispatchers on pool. A pool
// that is shared by several readers and writers needs them only once.
func Register(pool *scheduler.ThreadPool) {
	pool.Register(ReadDispatcher, scheduler.DispatcherFunc(func(pkg *scheduler.Package, ctl scheduler.Control) error {
		return pkg.Payload.(*Reader).readBlocks(ctl)
	}))
	pool.Register(DecodeDispatcher, scheduler.DispatcherFunc(func(pkg *scheduler.Package, _ scheduler.Control) error {
		task := pkg.Payload.(readerTask)
		return task.r.decode(task.h)
	}))
	pool.Register(EncodeDispatcher, scheduler.DispatcherFunc(func(pkg *scheduler.Package, ctl scheduler.Control) error {
		task := pkg.Payload.(writerTask)
		return task.w.encode(task.h, ctl)
	}))
	pool.Register(WriteDispatcher, scheduler.DispatcherFunc(func(pkg *scheduler.Package, _ scheduler.Control) error {
		return pkg.Payload.(*Writer).writeReady()
	}))
}

// NewThreadPool starts a thread pool with the block pipeline
// dispatchers installed.
func NewThreadPool(threads int) *scheduler.ThreadPool {
	pool := scheduler.New(threads)
	Register(pool)
	return pool
}

func registered(pool *scheduler.ThreadPool) bool {
	return pool.Registered(ReadDispatcher) && pool.Registered(DecodeDispatcher) &&
		pool.Registered(EncodeDispatcher) && pool.Registered(WriteDispatcher)
}

type (
	// An Option configures a Reader or a Writer.
	Option func(*options)

	options struct {
		pool     *scheduler.ThreadPool
		threads  int
		format   Format
		buffers  int
		level    int
		levelSet bool
		window   int
		index    *Index
		logger   *zerolog.Logger
	}
)

// WithThreadPool runs the pipeline on pool, which must have the block
// pipeline dispatchers installed. The pool is not terminated on Close.
func WithThreadPool(pool *scheduler.ThreadPool) Option {
	return func(o *options) { o.pool = pool }
}

// WithThreads sets the number of threads of a private thread pool.
func WithThreads(threads int) Option {
	return func(o *options) { o.threads = threads }
}

// WithFormat sets the block format. Readers detect the format if it is
// not set; writers default to BGZF.
func WithFormat(format Format) Option {
	return func(o *options) { o.format = format }
}

// WithBuffers sets the number of block buffers. The default is four
// per thread.
func WithBuffers(buffers int) Option {
	return func(o *options) { o.buffers = buffers }
}

// WithLevel sets the compression level of a Writer.
func WithLevel(level int) Option {
	return func(o *options) { o.level, o.levelSet = level, true }
}

// WithWindow sets the number of uncompressed bytes per block of a
// Writer.
func WithWindow(window int) Option {
	return func(o *options) { o.window = window }
}

// WithIndex makes a Writer add an entry to index for every physical
// block it writes.
func WithIndex(index *Index) Option {
	return func(o *options) { o.index = index }
}

// WithLogger sets the logger of a Reader or Writer.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

func makeOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// threadPool returns the configured pool, or starts a private one.
func (o *options) threadPool() (pool *scheduler.ThreadPool, private bool) {
	if o.pool != nil {
		if !registered(o.pool) {
			internal.Panicf("blockio: thread pool without block pipeline dispatchers")
		}
		return o.pool, false
	}
	return NewThreadPool(o.threads), true
}

func (o *options) bufferCount(pool *scheduler.ThreadPool) int {
	if o.buffers > 0 {
		return o.buffers
	}
	return 4 * pool.Stats().Threads
}

func (o *options) log(kind string, stream uint64) zerolog.Logger {
	logger := internal.Log
	if o.logger != nil {
		logger = *o.logger
	}
	return logger.With().Str("component", kind).Uint64("stream", stream).Logger()
}
