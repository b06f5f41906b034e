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
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/freelist"
	"github.com/exascience/elzip/internal"
	"github.com/exascience/elzip/scheduler"
)

var lastStream uint64

func nextStream() uint64 {
	return atomic.AddUint64(&lastStream, 1)
}

// Reader decompresses a block stream in parallel. Blocks are read and
// decoded on a thread pool, and handed to the consumer in their
// original order.
//
// A Reader is not safe for concurrent use by multiple goroutines.
type Reader struct {
	stream        uint64
	format        Format
	pool          *scheduler.ThreadPool
	private       bool
	logger        zerolog.Logger
	decompressors *codec.Decompressors
	blocks        *freelist.Bounded[*Block]

	// readMutex guards src and the fields below it.
	readMutex sync.Mutex
	src       *bufio.Reader
	nextID    uint64
	offset    int64

	readPending int32
	readDone    int32
	finished    int32

	reorder reorder
	ready   chan struct{}

	current   freelist.Handle[*Block]
	index     int
	uoffset   int64
	callbacks []func(BlockInfo)
	err       error
	closed    bool
}

// NewReader returns a Reader that decompresses the stream produced by
// r. Unless WithFormat is given, the format is detected from the first
// bytes of the stream.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := makeOptions(opts)
	src := bufio.NewReaderSize(internal.RetryReader(r), MaxBlockSize)
	format := o.format
	if format == nil {
		var err error
		if format, err = Detect(src); err != nil {
			return nil, err
		}
	}
	decompressors, err := codec.NewDecompressors(format.Codec())
	if err != nil {
		return nil, err
	}
	pool, private := o.threadPool()
	stream := nextStream()
	reader := &Reader{
		stream:        stream,
		format:        format,
		pool:          pool,
		private:       private,
		logger:        o.log("reader", stream),
		decompressors: decompressors,
		blocks:        freelist.NewBounded(o.bufferCount(pool), newBlock),
		src:           src,
		reorder:       newReorder(),
		ready:         make(chan struct{}, 1),
	}
	reader.logger.Debug().Str("format", format.Name()).Uint64("buffers", reader.blocks.Capacity()).Msg("reader started")
	reader.scheduleRead()
	return reader, nil
}

// Stream returns the stream id of the reader.
func (r *Reader) Stream() uint64 {
	return r.stream
}

// Format returns the block format of the stream.
func (r *Reader) Format() Format {
	return r.format
}

// OnBlock registers a callback that is called for every block, in
// stream order, when the consumer reaches it. Callbacks must be
// registered before the first call to Read.
func (r *Reader) OnBlock(f func(BlockInfo)) {
	r.callbacks = append(r.callbacks, f)
}

func (r *Reader) scheduleRead() {
	if atomic.LoadInt32(&r.readDone) != 0 || atomic.LoadInt32(&r.finished) != 0 {
		return
	}
	if atomic.CompareAndSwapInt32(&r.readPending, 0, 1) {
		r.pool.Enqueue(scheduler.NewPackage(readPriority, ReadDispatcher, r))
	}
}

// readBlocks reads as many blocks as there are free buffers. If
// another worker is already reading this stream, it returns
// immediately.
func (r *Reader) readBlocks(ctl scheduler.Control) error {
	atomic.StoreInt32(&r.readPending, 0)
	if !r.readMutex.TryLock() {
		return nil
	}
	err := r.readLocked(ctl)
	r.readMutex.Unlock()
	if err != nil {
		return err
	}
	// Buffers that were put back while the lock was held may not
	// have been able to schedule a read.
	if r.blocks.Available() > 0 {
		r.scheduleRead()
	}
	return nil
}

func (r *Reader) readLocked(ctl scheduler.Control) error {
	for atomic.LoadInt32(&r.readDone) == 0 && atomic.LoadInt32(&r.finished) == 0 {
		h, ok := r.blocks.TryGet()
		if !ok {
			return nil
		}
		b := h.Value
		b.reset()
		if err := readNext(r.format, r.src, b, r.stream, r.nextID, r.offset); err != nil {
			r.blocks.Put(h)
			atomic.StoreInt32(&r.readDone, 1)
			return err
		}
		r.nextID++
		r.offset += int64(len(b.Compressed))
		if b.Final {
			atomic.StoreInt32(&r.readDone, 1)
			r.logger.Debug().Uint64("blocks", r.nextID).Int64("offset", r.offset).Msg("end of stream")
		}
		ctl.Enqueue(scheduler.NewSubPackage(codecPriority, DecodeDispatcher, int(b.ID), readerTask{r: r, h: h}))
	}
	return nil
}

// readNext reads the next block of a stream into b and stamps it. The
// last block of the stream is marked final, and must be an EOF marker.
func readNext(format Format, src *bufio.Reader, b *Block, stream, id uint64, offset int64) error {
	b.Stream, b.ID, b.Offset = stream, id, offset
	if err := format.ReadBlock(src, b); err != nil {
		if err == io.EOF {
			err = ErrMissingEOF
		}
		return blockError(b, err)
	}
	if _, err := src.Peek(1); err == io.EOF {
		b.Final = true
		if !format.IsEOF(b) {
			return blockError(b, ErrMissingEOF)
		}
	} else if err != nil {
		return blockError(b, err)
	}
	return nil
}

func (r *Reader) decode(h freelist.Handle[*Block]) error {
	b := h.Value
	d := r.decompressors.Lease()
	err := r.format.Decode(d.Value, b)
	r.decompressors.Release(d)
	if err != nil {
		r.blocks.Put(h)
		return blockError(b, err)
	}
	if r.reorder.complete(b.ID, h) {
		select {
		case r.ready <- struct{}{}:
		default:
		}
	}
	return nil
}

// next makes the next block in stream order the current block, waiting
// until it is decoded.
func (r *Reader) next() error {
	for {
		if h, ok := r.reorder.take(); ok {
			r.current, r.index = h, 0
			b := h.Value
			if len(r.callbacks) > 0 {
				info := BlockInfo{
					Stream:           b.Stream,
					ID:               b.ID,
					Offset:           b.Offset,
					Uncompressed:     r.uoffset,
					CompressedSize:   len(b.Compressed),
					UncompressedSize: len(b.Data),
					CRC32:            b.CRC32,
					Final:            b.Final,
				}
				for _, f := range r.callbacks {
					f(info)
				}
			}
			r.uoffset += int64(len(b.Data))
			return nil
		}
		select {
		case <-r.ready:
		case <-r.pool.Done():
			if err := r.pool.Err(); err != nil {
				return err
			}
			return ErrClosed
		}
	}
}

// release puts the current block back and lets the pipeline read ahead.
func (r *Reader) release() {
	r.blocks.Put(r.current)
	r.current = freelist.Handle[*Block]{}
	r.scheduleRead()
}

// Read implements the corresponding method of io.Reader. It returns
// io.EOF after the last block, or the first error of the pipeline.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if r.current.Valid() {
			b := r.current.Value
			if r.index < len(b.Data) {
				n = copy(p, b.Data[r.index:])
				r.index += n
				return n, nil
			}
			final := b.Final
			r.release()
			if final {
				r.err = io.EOF
				return 0, io.EOF
			}
		}
		if err = r.next(); err != nil {
			r.err = err
			return 0, err
		}
	}
}

// WriteTo implements the corresponding method of io.WriterTo, which
// lets io.Copy avoid an intermediate buffer.
func (r *Reader) WriteTo(w io.Writer) (n int64, err error) {
	if r.closed {
		return 0, ErrClosed
	}
	for r.err == nil {
		if r.current.Valid() {
			b := r.current.Value
			if r.index < len(b.Data) {
				m, err := w.Write(b.Data[r.index:])
				r.index += m
				n += int64(m)
				if err != nil {
					return n, err
				}
				continue
			}
			final := b.Final
			r.release()
			if final {
				r.err = io.EOF
				break
			}
		}
		if err := r.next(); err != nil {
			r.err = err
		}
	}
	if r.err == io.EOF {
		return n, nil
	}
	return n, r.err
}

// Close stops the pipeline. With a private thread pool it also
// terminates and joins the pool, and returns its first error.
func (r *Reader) Close() (err error) {
	if r.closed {
		return nil
	}
	r.closed = true
	atomic.StoreInt32(&r.finished, 1)
	// wait for a read in progress
	r.readMutex.Lock()
	r.readMutex.Unlock()
	if r.current.Valid() {
		r.blocks.Put(r.current)
		r.current = freelist.Handle[*Block]{}
	}
	if r.private {
		r.pool.Terminate()
		err = r.pool.Join()
	}
	if err == nil && r.err != nil && r.err != io.EOF && r.err != ErrClosed {
		err = r.err
	}
	r.logger.Debug().Uint64("blocks", r.reorder.next).Int("waiting", r.reorder.waiting()).Msg("reader closed")
	return err
}
