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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/exascience/pargo/parallel"

	"github.com/exascience/elzip/codec"
)

// IndexedFile gives random access to the uncompressed content of a
// BGZF file. It is safe for concurrent use.
type IndexedFile struct {
	file          *os.File
	data          mmap.MMap
	index         *Index
	decompressors *codec.Decompressors
}

var bufioReaderPool = sync.Pool{New: func() interface{} {
	return bufio.NewReaderSize(nil, MaxBlockSize)
}}

// OpenIndexed maps a BGZF file into memory. If idx is nil, the index is
// built by scanning the file.
func OpenIndexed(filename string, idx *Index) (*IndexedFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%v in OpenIndexed", err)
	}
	decompressors, err := codec.NewDecompressors(BGZF.Codec())
	if err != nil {
		_ = data.Unmap()
		_ = f.Close()
		return nil, err
	}
	file := &IndexedFile{file: f, data: data, decompressors: decompressors}
	if idx == nil {
		if idx, err = BuildIndex(bytes.NewReader(data), 0); err != nil {
			_ = file.Close()
			return nil, err
		}
	} else if last := idx.Len() - 1; last >= 0 && idx.entries[last].Compressed >= uint64(len(data)) {
		_ = file.Close()
		return nil, fmt.Errorf("%w: index does not match %v", ErrCorrupt, filename)
	}
	file.index = idx
	return file, nil
}

// Index returns the index of the file.
func (f *IndexedFile) Index() *Index {
	return f.index
}

// Size returns the uncompressed size of the file.
func (f *IndexedFile) Size() int64 {
	return int64(f.index.Size())
}

// Close unmaps and closes the file.
func (f *IndexedFile) Close() error {
	err := f.data.Unmap()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// readBlock reads and decodes the block at the compressed offset.
func (f *IndexedFile) readBlock(src *bufio.Reader, b *Block, id uint64, offset int64) error {
	b.reset()
	b.ID, b.Offset = id, offset
	if offset >= int64(len(f.data)) {
		return blockError(b, corrupt("block offset beyond end of file"))
	}
	src.Reset(bytes.NewReader(f.data[offset:]))
	if err := BGZF.ReadBlock(src, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return blockError(b, err)
	}
	d := f.decompressors.Lease()
	err := BGZF.Decode(d.Value, b)
	f.decompressors.Release(d)
	if err != nil {
		return blockError(b, err)
	}
	return nil
}

// ReadAt implements the corresponding method of io.ReaderAt. It
// decodes only the blocks that overlap the requested range.
func (f *IndexedFile) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("negative offset in IndexedFile.ReadAt")
	}
	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}
	src := bufioReaderPool.Get().(*bufio.Reader)
	defer bufioReaderPool.Put(src)
	b := getBlock()
	defer blockPool.Put(b)

	start := f.index.Lookup(uint64(off))
	offset := int64(start.Compressed)
	skip := off - int64(start.Uncompressed)
	for id := uint64(0); n < len(p) && off+int64(n) < size; id++ {
		if err := f.readBlock(src, b, id, offset); err != nil {
			return n, err
		}
		offset += int64(len(b.Compressed))
		if skip >= int64(len(b.Data)) {
			skip -= int64(len(b.Data))
			continue
		}
		n += copy(p[n:], b.Data[skip:])
		skip = 0
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// NewSectionReader returns a reader of the uncompressed bytes in
// [off, off+n).
func (f *IndexedFile) NewSectionReader(off, n int64) *io.SectionReader {
	return io.NewSectionReader(f, off, n)
}

// Verify decodes every block of the file in parallel and checks its
// checksum. It returns the first corrupt block as a *BlockError. A
// non-positive number of threads means GOMAXPROCS.
func (f *IndexedFile) Verify(threads int) error {
	if threads < 0 {
		threads = 0
	}
	starts := make([]int64, 0, f.index.Len()+1)
	starts = append(starts, 0)
	for _, e := range f.index.entries {
		starts = append(starts, int64(e.Compressed))
	}
	result := parallel.RangeReduce(0, len(starts), threads, func(low, high int) interface{} {
		src := bufioReaderPool.Get().(*bufio.Reader)
		defer bufioReaderPool.Put(src)
		b := getBlock()
		defer blockPool.Put(b)
		for i := low; i < high; i++ {
			if err := f.readBlock(src, b, uint64(i), starts[i]); err != nil {
				return err
			}
		}
		return nil
	}, func(left, right interface{}) interface{} {
		if left != nil {
			return left
		}
		return right
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// Verify opens a BGZF file and verifies all its blocks. If idx is nil,
// the index is rebuilt, which already checks every block.
func Verify(filename string, idx *Index, threads int) (err error) {
	f, err := OpenIndexed(filename, idx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return f.Verify(threads)
}
