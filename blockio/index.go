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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/exascience/elzip/internal"
)

type (
	// An IndexEntry locates the start of a physical block.
	IndexEntry struct {
		Compressed   uint64
		Uncompressed uint64
	}

	// An Index maps uncompressed offsets of a BGZF file to the blocks
	// that contain them. It has the layout of htslib .gzi files: one
	// entry per block after the first, which implicitly starts at
	// (0, 0).
	//
	// An Index is not safe for concurrent modification.
	Index struct {
		entries []IndexEntry
	}
)

// Add appends the start of the next block.
func (idx *Index) Add(compressed, uncompressed uint64) {
	idx.entries = append(idx.entries, IndexEntry{Compressed: compressed, Uncompressed: uncompressed})
}

// Len returns the number of stored entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns the stored entries.
func (idx *Index) Entries() []IndexEntry {
	return idx.entries
}

// Size returns the uncompressed size of the indexed file, which is the
// uncompressed offset of its EOF marker.
func (idx *Index) Size() uint64 {
	if len(idx.entries) == 0 {
		return 0
	}
	return idx.entries[len(idx.entries)-1].Uncompressed
}

// Lookup returns the start of the last block that begins at or before
// the uncompressed offset.
func (idx *Index) Lookup(uncompressed uint64) IndexEntry {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Uncompressed > uncompressed
	})
	if i == 0 {
		return IndexEntry{}
	}
	return idx.entries[i-1]
}

// WriteTo implements the corresponding method of io.WriterTo.
func (idx *Index) WriteTo(w io.Writer) (n int64, err error) {
	out := bufio.NewWriter(w)
	buf := make([]byte, 0, 16)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(idx.entries)))
	m, err := out.Write(buf)
	n += int64(m)
	if err != nil {
		return n, fmt.Errorf("%v in Index.WriteTo", err)
	}
	for _, e := range idx.entries {
		buf = binary.LittleEndian.AppendUint64(buf[:0], e.Compressed)
		buf = binary.LittleEndian.AppendUint64(buf, e.Uncompressed)
		m, err = out.Write(buf)
		n += int64(m)
		if err != nil {
			return n, fmt.Errorf("%v in Index.WriteTo", err)
		}
	}
	if err = out.Flush(); err != nil {
		return n, fmt.Errorf("%v in Index.WriteTo", err)
	}
	return n, nil
}

// ReadIndex reads an index in .gzi layout.
func ReadIndex(r io.Reader) (*Index, error) {
	in := bufio.NewReader(r)
	var buf [16]byte
	if _, err := io.ReadFull(in, buf[:8]); err != nil {
		return nil, fmt.Errorf("%w: %v in ReadIndex", ErrCorrupt, err)
	}
	count := binary.LittleEndian.Uint64(buf[:8])
	idx := &Index{}
	var last IndexEntry
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(in, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: %v in ReadIndex", ErrCorrupt, err)
		}
		e := IndexEntry{
			Compressed:   binary.LittleEndian.Uint64(buf[:8]),
			Uncompressed: binary.LittleEndian.Uint64(buf[8:]),
		}
		if e.Compressed <= last.Compressed || e.Uncompressed < last.Uncompressed {
			return nil, corrupt("index entries out of order")
		}
		idx.entries = append(idx.entries, e)
		last = e
	}
	return idx, nil
}

// IndexFilename returns the conventional name of the index of a BGZF
// file.
func IndexFilename(filename string) string {
	return filename + ".gzi"
}

// LoadIndex reads an index file.
func LoadIndex(filename string) (idx *Index, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(f, &err)
	return ReadIndex(f)
}

// SaveIndex writes an index file.
func (idx *Index) SaveIndex(filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer internal.Close(f, &err)
	_, err = idx.WriteTo(f)
	return err
}
