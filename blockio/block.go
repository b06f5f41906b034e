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

import "sync"

const (
	// MaxBlockSize is the maximum size of one physical block, and the
	// maximum number of uncompressed bytes in one window.
	MaxBlockSize = 65536

	// DefaultWindow is the number of uncompressed bytes per window that
	// htslib uses for BGZF files.
	DefaultWindow = 0xff00
)

type (
	// A SubBlock describes one physical block produced by encoding a
	// window.
	SubBlock struct {
		Compressed   int
		Uncompressed int
		CRC32        uint32
	}

	// A Block is the unit of work of the pipelines. It holds either one
	// physical block read from a stream, or one window of data and the
	// one or two physical blocks it encodes to.
	Block struct {
		Stream uint64
		ID     uint64
		// Offset is the compressed offset of the block in its stream.
		Offset     int64
		Compressed []byte
		Data       []byte
		// CRC32 and Size are taken from the trailer of a block that was
		// read.
		CRC32 uint32
		Size  uint32
		// Final marks the last block of a stream.
		Final bool
		Subs  []SubBlock

		// payload is the range of the compressed payload in Compressed.
		payload [2]int
	}

	// BlockInfo is passed to block callbacks.
	BlockInfo struct {
		Stream uint64
		ID     uint64
		// Sub is the index of the physical block within an encoded
		// window; it is always 0 for blocks that are read.
		Sub              int
		Offset           int64
		Uncompressed     int64
		CompressedSize   int
		UncompressedSize int
		CRC32            uint32
		Final            bool
	}
)

func newBlock() *Block {
	return &Block{
		Compressed: make([]byte, 0, MaxBlockSize),
		Data:       make([]byte, 0, MaxBlockSize),
		Subs:       make([]SubBlock, 0, 2),
	}
}

func (b *Block) reset() {
	b.Stream, b.ID, b.Offset = 0, 0, 0
	b.Compressed = b.Compressed[:0]
	b.Data = b.Data[:0]
	b.CRC32, b.Size = 0, 0
	b.Final = false
	b.Subs = b.Subs[:0]
	b.payload = [2]int{}
}

// Payload returns the compressed payload of a block that was read.
func (b *Block) Payload() []byte {
	return b.Compressed[b.payload[0]:b.payload[1]]
}

var blockPool = sync.Pool{New: func() interface{} {
	return newBlock()
}}

func getBlock() *Block {
	b := blockPool.Get().(*Block)
	b.reset()
	return b
}
