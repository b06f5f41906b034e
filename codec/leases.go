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

package codec

import (
	"github.com/exascience/elzip/freelist"
	"github.com/exascience/elzip/internal"
)

// Compressors leases compressors of one codec and level. The pool
// grows to the number of concurrent callers and never shrinks.
type Compressors struct {
	codec Codec
	level int
	pool  *freelist.Growing[Compressor]
}

// NewCompressors returns a pool of compressors. It fails if the codec
// rejects the level.
func NewCompressors(c Codec, level int) (*Compressors, error) {
	first, err := c.NewCompressor(level)
	if err != nil {
		return nil, err
	}
	l := &Compressors{codec: c, level: level}
	l.pool = freelist.NewGrowing(1, func() Compressor {
		if first != nil {
			cmp := first
			first = nil
			return cmp
		}
		cmp, err := c.NewCompressor(level)
		if err != nil {
			internal.Panicf("codec: %v", err)
		}
		return cmp
	})
	return l, nil
}

// Codec returns the codec of the leased compressors.
func (l *Compressors) Codec() Codec { return l.codec }

// Level returns the compression level of the leased compressors.
func (l *Compressors) Level() int { return l.level }

// Lease checks out a compressor. It never blocks.
func (l *Compressors) Lease() freelist.Handle[Compressor] {
	return l.pool.Get()
}

// Release returns a leased compressor.
func (l *Compressors) Release(h freelist.Handle[Compressor]) {
	l.pool.Put(h)
}

// Capacity returns the number of compressors created so far.
func (l *Compressors) Capacity() uint64 {
	return l.pool.Capacity()
}

// Decompressors leases decompressors of one codec.
type Decompressors struct {
	codec Codec
	pool  *freelist.Growing[Decompressor]
}

// NewDecompressors returns a pool of decompressors.
func NewDecompressors(c Codec) (*Decompressors, error) {
	first, err := c.NewDecompressor()
	if err != nil {
		return nil, err
	}
	l := &Decompressors{codec: c}
	l.pool = freelist.NewGrowing(1, func() Decompressor {
		if first != nil {
			dcmp := first
			first = nil
			return dcmp
		}
		dcmp, err := c.NewDecompressor()
		if err != nil {
			internal.Panicf("codec: %v", err)
		}
		return dcmp
	})
	return l, nil
}

// Codec returns the codec of the leased decompressors.
func (l *Decompressors) Codec() Codec { return l.codec }

// Lease checks out a decompressor. It never blocks.
func (l *Decompressors) Lease() freelist.Handle[Decompressor] {
	return l.pool.Get()
}

// Release returns a leased decompressor.
func (l *Decompressors) Release(h freelist.Handle[Decompressor]) {
	l.pool.Put(h)
}

// Capacity returns the number of decompressors created so far.
func (l *Decompressors) Capacity() uint64 {
	return l.pool.Capacity()
}
