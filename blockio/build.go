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
	"context"
	"io"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/internal"
)

// blockSource is a pipeline.Source of raw blocks.
type blockSource struct {
	format Format
	src    *bufio.Reader
	stream uint64
	id     uint64
	offset int64
	err    error
	data   *Block
}

// Err implements the corresponding method of pipeline.Source
func (s *blockSource) Err() error {
	if s.err != io.EOF {
		return s.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source
func (s *blockSource) Prepare(_ context.Context) (size int) {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source
func (s *blockSource) Fetch(size int) (fetched int) {
	if s.err != nil {
		return 0
	}
	b := getBlock()
	if err := readNext(s.format, s.src, b, s.stream, s.id, s.offset); err != nil {
		blockPool.Put(b)
		s.err = err
		s.data = nil
		return 0
	}
	s.id++
	s.offset += int64(len(b.Compressed))
	if b.Final {
		s.err = io.EOF
	}
	s.data = b
	return 1
}

// Data implements the corresponding method of pipeline.Source
func (s *blockSource) Data() interface{} {
	return s.data
}

// BuildIndex scans a BGZF stream, verifying every block, and returns
// its index. A non-positive number of threads means GOMAXPROCS.
func BuildIndex(r io.Reader, threads int) (*Index, error) {
	return ScanBlocks(r, BGZF, threads, nil)
}

// ScanBlocks decodes and verifies every block of a stream in parallel,
// calls f for each block in stream order, and returns the index of the
// stream. f may be nil.
func ScanBlocks(r io.Reader, format Format, threads int, f func(BlockInfo, []byte)) (*Index, error) {
	if threads < 0 {
		threads = 0
	}
	decompressors, err := codec.NewDecompressors(format.Codec())
	if err != nil {
		return nil, err
	}
	src := &blockSource{
		format: format,
		src:    bufio.NewReaderSize(internal.RetryReader(r), MaxBlockSize),
		stream: nextStream(),
	}
	idx := &Index{}
	var p pipeline.Pipeline
	p.Source(src)
	p.Add(pipeline.LimitedPar(threads, pipeline.Receive(func(_ int, data interface{}) interface{} {
		b := data.(*Block)
		d := decompressors.Lease()
		err := format.Decode(d.Value, b)
		decompressors.Release(d)
		if err != nil {
			p.SetErr(blockError(b, err))
			blockPool.Put(b)
			return nil
		}
		return b
	})), pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		b, ok := data.(*Block)
		if !ok {
			return nil
		}
		info := BlockInfo{
			Stream:           b.Stream,
			ID:               b.ID,
			Offset:           b.Offset,
			Uncompressed:     int64(idx.Size()),
			CompressedSize:   len(b.Compressed),
			UncompressedSize: len(b.Data),
			CRC32:            b.CRC32,
			Final:            b.Final,
		}
		if f != nil {
			f(info, b.Data)
		}
		if !b.Final {
			idx.Add(uint64(b.Offset)+uint64(len(b.Compressed)), uint64(info.Uncompressed)+uint64(len(b.Data)))
		}
		blockPool.Put(b)
		return nil
	})))
	if err := internal.RunPipeline(&p); err != nil {
		return nil, err
	}
	return idx, nil
}
