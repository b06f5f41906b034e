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
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/freelist"
	"github.com/exascience/elzip/internal"
	"github.com/exascience/elzip/scheduler"
)

// Writer compresses a block stream in parallel. Windows of data are
// encoded on a thread pool and written in their original order.
//
// A Writer is not safe for concurrent use by multiple goroutines.
type Writer struct {
	stream      uint64
	format      Format
	pool        *scheduler.ThreadPool
	private     bool
	logger      zerolog.Logger
	compressors *codec.Compressors
	windows     *freelist.Bounded[*Block]
	window      int

	// producer side
	dst     io.Writer
	current freelist.Handle[*Block]
	nextID  uint64
	closed  bool

	reorder reorder

	// write side, serialized through reorder
	offset    int64
	uoffset   int64
	index     *Index
	callbacks []func(BlockInfo)

	written  uint64
	progress chan struct{}
}

// NewWriter returns a Writer that writes a compressed stream to w. It
// fails if the compression level or the window size is invalid for
// the format.
//
// For BGZF, levels follow zlib, from 1 (BestSpeed) to 9
// (BestCompression); level 0 (NoCompression) only adds the necessary
// DEFLATE framing, level -1 is the default level, and level -2
// (HuffmanOnly) uses Huffman compression only.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o := makeOptions(opts)
	format := o.format
	if format == nil {
		format = BGZF
	}
	level := format.Codec().DefaultLevel()
	if o.levelSet {
		level = o.level
	}
	window := o.window
	if window == 0 {
		window = DefaultWindow
	}
	if window < 0 || window > format.MaxWindow() {
		return nil, fmt.Errorf("invalid window size %v in NewWriter", window)
	}
	compressors, err := codec.NewCompressors(format.Codec(), level)
	if err != nil {
		return nil, err
	}
	pool, private := o.threadPool()
	stream := nextStream()
	writer := &Writer{
		stream:      stream,
		format:      format,
		pool:        pool,
		private:     private,
		logger:      o.log("writer", stream),
		compressors: compressors,
		windows:     freelist.NewBounded(o.bufferCount(pool), newBlock),
		window:      window,
		dst:         internal.RetryWriter(w),
		reorder:     newReorder(),
		index:       o.index,
		progress:    make(chan struct{}, 1),
	}
	writer.logger.Debug().Str("format", format.Name()).Int("level", level).Int("window", window).Msg("writer started")
	return writer, nil
}

// Stream returns the stream id of the writer.
func (w *Writer) Stream() uint64 {
	return w.stream
}

// OnBlockWritten registers a callback that is called for every
// physical block after it is written, in stream order. Callbacks run
// on the thread pool and must be registered before the first Write.
func (w *Writer) OnBlockWritten(f func(BlockInfo)) {
	w.callbacks = append(w.callbacks, f)
}

// failure returns the error that stopped the pipeline.
func (w *Writer) failure() error {
	if err := w.pool.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Write implements the corresponding method of io.Writer. It blocks
// while all window buffers are in use.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.closed {
		return 0, ErrClosed
	}
	for len(p) > 0 {
		if !w.current.Valid() {
			h, err := w.windows.GetContext(w.pool.Context())
			if err != nil {
				return n, w.failure()
			}
			h.Value.reset()
			w.current = h
		}
		b := w.current.Value
		m := min(w.window-len(b.Data), len(p))
		b.Data = append(b.Data, p[:m]...)
		n += m
		p = p[m:]
		if len(b.Data) == w.window {
			w.submit()
		}
	}
	return n, nil
}

func (w *Writer) submit() {
	h := w.current
	w.current = freelist.Handle[*Block]{}
	b := h.Value
	b.Stream, b.ID = w.stream, w.nextID
	w.nextID++
	w.pool.Enqueue(scheduler.NewSubPackage(codecPriority, EncodeDispatcher, int(b.ID), writerTask{w: w, h: h}))
}

func (w *Writer) encode(h freelist.Handle[*Block], ctl scheduler.Control) error {
	b := h.Value
	c := w.compressors.Lease()
	err := w.format.Encode(c.Value, b)
	w.compressors.Release(c)
	if err != nil {
		err = blockError(b, err)
		w.windows.Put(h)
		return err
	}
	if w.reorder.complete(b.ID, h) {
		ctl.Enqueue(scheduler.NewPackage(writePriority, WriteDispatcher, w))
	}
	return nil
}

// writeReady writes all encoded blocks that are next in order.
func (w *Writer) writeReady() error {
	for {
		h, ok := w.reorder.take()
		if !ok {
			return nil
		}
		b := h.Value
		b.Offset = w.offset
		if _, err := w.dst.Write(b.Compressed); err != nil {
			return blockError(b, fmt.Errorf("%w in Writer", err))
		}
		for i, sub := range b.Subs {
			info := BlockInfo{
				Stream:           b.Stream,
				ID:               b.ID,
				Sub:              i,
				Offset:           w.offset,
				Uncompressed:     w.uoffset,
				CompressedSize:   sub.Compressed,
				UncompressedSize: sub.Uncompressed,
				CRC32:            sub.CRC32,
			}
			w.offset += int64(sub.Compressed)
			w.uoffset += int64(sub.Uncompressed)
			if w.index != nil {
				w.index.Add(uint64(w.offset), uint64(w.uoffset))
			}
			for _, f := range w.callbacks {
				f(info)
			}
		}
		w.windows.Put(h)
		atomic.AddUint64(&w.written, 1)
		select {
		case w.progress <- struct{}{}:
		default:
		}
	}
}

// wait blocks until every submitted window is written.
func (w *Writer) wait() error {
	for atomic.LoadUint64(&w.written) < w.nextID {
		select {
		case <-w.progress:
		case <-w.pool.Done():
			return w.failure()
		}
	}
	return w.pool.Err()
}

// Flush submits the current partial window, and waits until all data
// written so far is written to the underlying writer.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if w.current.Valid() && len(w.current.Value.Data) > 0 {
		w.submit()
	}
	return w.wait()
}

// Close flushes the writer and writes the EOF marker. With a private
// thread pool it also terminates and joins the pool. Close returns the
// first error of the pipeline. It does not close the underlying
// writer.
func (w *Writer) Close() (err error) {
	if w.closed {
		return nil
	}
	err = w.Flush()
	w.closed = true
	if w.current.Valid() {
		w.windows.Put(w.current)
		w.current = freelist.Handle[*Block]{}
	}
	if err == nil {
		eof := w.format.EOF()
		if _, werr := w.dst.Write(eof); werr != nil {
			err = fmt.Errorf("%w in Writer", werr)
		} else {
			w.offset += int64(len(eof))
		}
	}
	if w.private {
		w.pool.Terminate()
		if jerr := w.pool.Join(); err == nil {
			err = jerr
		}
	}
	w.logger.Debug().Uint64("blocks", w.nextID).Int64("offset", w.offset).Int64("size", w.uoffset).Msg("writer closed")
	return err
}

// Offset returns the number of compressed bytes written so far. It is
// exact after Flush or Close.
func (w *Writer) Offset() int64 {
	return w.offset
}
