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
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/exascience/elzip/codec"
)

const (
	// bgzfHeaderSize is the size of a header with only the BC
	// subfield, as written by Encode.
	bgzfHeaderSize = 18
	// gzipFixedHeaderSize is the part of a gzip header up to and
	// including XLEN.
	gzipFixedHeaderSize = 12
	bgzfTrailerSize     = 8
)

var (
	bgzfMagic = []byte{0x1f, 0x8b, 0x08, 0x04}

	bgzfHeader = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x00, 0x00,
	}

	bgzfEOF = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
		0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
)

type bgzfFormat struct{}

// BGZF is the blocked gzip format of htslib. Its payloads are raw
// deflate streams; each physical block is a complete gzip member.
var BGZF Format = bgzfFormat{}

func (bgzfFormat) Name() string       { return "bgzf" }
func (bgzfFormat) Codec() codec.Codec { return codec.Deflate }
func (bgzfFormat) MaxWindow() int     { return MaxBlockSize }
func (bgzfFormat) EOF() []byte        { return bgzfEOF }

func (bgzfFormat) IsEOF(b *Block) bool {
	return bytes.Equal(b.Payload(), bgzfEOF[bgzfHeaderSize:len(bgzfEOF)-bgzfTrailerSize]) &&
		b.CRC32 == 0 && b.Size == 0
}

func peekHeader(r *bufio.Reader, n int) ([]byte, error) {
	header, err := r.Peek(n)
	if err == nil {
		return header, nil
	}
	if err == io.EOF || errors.Is(err, bufio.ErrBufferFull) {
		return nil, corrupt("truncated header")
	}
	return nil, err
}

func (bgzfFormat) ReadBlock(r *bufio.Reader, b *Block) error {
	if _, err := r.Peek(1); err != nil {
		return err
	}
	header, err := peekHeader(r, gzipFixedHeaderSize)
	if err != nil {
		return err
	}
	if !bytes.Equal(header[:4], bgzfMagic) {
		return corrupt("invalid BGZF header")
	}
	xlen := int(binary.LittleEndian.Uint16(header[10:12]))
	if header, err = peekHeader(r, gzipFixedHeaderSize+xlen); err != nil {
		return err
	}
	extra := header[gzipFixedHeaderSize:]
	bsize := -1
	var slen int
	for i := 0; i+4 <= len(extra); i += 4 + slen {
		slen = int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] == 66 && extra[i+1] == 67 && slen == 2 && i+6 <= len(extra) {
			bsize = int(binary.LittleEndian.Uint16(extra[i+4:i+6])) + 1
			break
		}
	}
	if bsize < 0 {
		return corrupt("missing BC extra subfield in BGZF header")
	}
	start := gzipFixedHeaderSize + xlen
	if bsize < start+bgzfTrailerSize {
		return corrupt("BGZF block size %v smaller than its header", bsize)
	}
	b.Compressed = grow(b.Compressed, bsize)
	if _, err := io.ReadFull(r, b.Compressed); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return corrupt("truncated block")
		}
		return err
	}
	tail := b.Compressed[bsize-bgzfTrailerSize:]
	b.CRC32 = binary.LittleEndian.Uint32(tail[0:4])
	b.Size = binary.LittleEndian.Uint32(tail[4:8])
	if b.Size > MaxBlockSize {
		return ErrBlockTooLarge
	}
	b.payload = [2]int{start, bsize - bgzfTrailerSize}
	return nil
}

func (bgzfFormat) Decode(d codec.Decompressor, b *Block) error {
	b.Data = grow(b.Data, int(b.Size))
	n, err := d.Decompress(b.Data, b.Payload())
	if err != nil {
		return corrupt("%v", err)
	}
	if n != int(b.Size) {
		return corrupt("decompressed %v bytes, expected %v", n, b.Size)
	}
	if crc32.ChecksumIEEE(b.Data) != b.CRC32 {
		return ErrChecksum
	}
	return nil
}

// Encode compresses the window into one block, or into two blocks of
// half the window each if a single block would exceed MaxBlockSize.
func (f bgzfFormat) Encode(c codec.Compressor, b *Block) error {
	if len(b.Data) > MaxBlockSize {
		return ErrBlockTooLarge
	}
	b.Compressed = b.Compressed[:0]
	b.Subs = b.Subs[:0]
	err := f.encodeBlock(c, b, b.Data)
	if !errors.Is(err, ErrBlockTooLarge) {
		return err
	}
	b.Compressed = b.Compressed[:0]
	half := len(b.Data) / 2
	for _, data := range [][]byte{b.Data[:half], b.Data[half:]} {
		if err := f.encodeBlock(c, b, data); err != nil {
			return err
		}
	}
	return nil
}

func (bgzfFormat) encodeBlock(c codec.Compressor, b *Block, data []byte) error {
	start := len(b.Compressed)
	buf, err := c.Compress(append(b.Compressed, bgzfHeader...), data)
	if err != nil {
		return err
	}
	total := len(buf) - start + bgzfTrailerSize
	if total > MaxBlockSize {
		b.Compressed = buf[:start]
		return ErrBlockTooLarge
	}
	crc := crc32.ChecksumIEEE(data)
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	binary.LittleEndian.PutUint16(buf[start+16:start+18], uint16(total-1))
	b.Compressed = buf
	b.Subs = append(b.Subs, SubBlock{Compressed: total, Uncompressed: len(data), CRC32: crc})
	return nil
}

// grow returns buf resized to n bytes, reallocating only if needed.
func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}
