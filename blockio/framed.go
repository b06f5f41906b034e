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
	"hash/crc32"
	"io"

	"github.com/exascience/elzip/codec"
)

// Framed streams consist of frames with the following header, all
// integers little endian:
//
//	magic "ELZB"
//	codec id            1 byte
//	flags               1 byte, bit 0 marks the EOF frame
//	compressed length   4 bytes
//	uncompressed length 4 bytes
//	CRC-32C             4 bytes, of the uncompressed bytes
const (
	framedHeaderSize = 18
	framedFinal      = 1
)

var (
	framedMagic = []byte("ELZB")
	castagnoli  = crc32.MakeTable(crc32.Castagnoli)
)

type framedFormat struct {
	codec codec.Codec
}

// Framed returns the framed format for the given codec. Framed streams
// are meant for intermediate files that only elzip reads back.
func Framed(c codec.Codec) Format {
	return framedFormat{codec: c}
}

func (f framedFormat) Name() string       { return "framed-" + f.codec.Name() }
func (f framedFormat) Codec() codec.Codec { return f.codec }
func (framedFormat) MaxWindow() int       { return MaxBlockSize }

func (f framedFormat) header(flags byte, clen, ulen int, crc uint32) []byte {
	var header [framedHeaderSize]byte
	copy(header[:4], framedMagic)
	header[4] = f.codec.ID()
	header[5] = flags
	binary.LittleEndian.PutUint32(header[6:10], uint32(clen))
	binary.LittleEndian.PutUint32(header[10:14], uint32(ulen))
	binary.LittleEndian.PutUint32(header[14:18], crc)
	return header[:]
}

func (f framedFormat) EOF() []byte {
	return f.header(framedFinal, 0, 0, 0)
}

func (framedFormat) IsEOF(b *Block) bool {
	return len(b.Compressed) == framedHeaderSize && b.Compressed[5]&framedFinal != 0 && b.Size == 0
}

func (f framedFormat) ReadBlock(r *bufio.Reader, b *Block) error {
	if _, err := r.Peek(1); err != nil {
		return err
	}
	header, err := peekHeader(r, framedHeaderSize)
	if err != nil {
		return err
	}
	if !bytes.Equal(header[:4], framedMagic) {
		return corrupt("invalid frame header")
	}
	if header[4] != f.codec.ID() {
		return corrupt("frame of codec %v in a %v stream", header[4], f.Name())
	}
	clen := binary.LittleEndian.Uint32(header[6:10])
	ulen := binary.LittleEndian.Uint32(header[10:14])
	if ulen > MaxBlockSize || clen > 2*MaxBlockSize {
		return ErrBlockTooLarge
	}
	if header[5]&framedFinal != 0 && (clen != 0 || ulen != 0) {
		return corrupt("EOF frame with data")
	}
	b.CRC32 = binary.LittleEndian.Uint32(header[14:18])
	b.Size = ulen
	total := framedHeaderSize + int(clen)
	b.Compressed = grow(b.Compressed, total)
	if _, err := io.ReadFull(r, b.Compressed); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return corrupt("truncated frame")
		}
		return err
	}
	b.payload = [2]int{framedHeaderSize, total}
	return nil
}

func (framedFormat) Decode(d codec.Decompressor, b *Block) error {
	b.Data = grow(b.Data, int(b.Size))
	if b.Size == 0 {
		return nil
	}
	n, err := d.Decompress(b.Data, b.Payload())
	if err != nil {
		return corrupt("%v", err)
	}
	if n != int(b.Size) {
		return corrupt("decompressed %v bytes, expected %v", n, b.Size)
	}
	if crc32.Checksum(b.Data, castagnoli) != b.CRC32 {
		return ErrChecksum
	}
	return nil
}

// Encode always produces a single frame.
func (f framedFormat) Encode(c codec.Compressor, b *Block) error {
	if len(b.Data) > MaxBlockSize {
		return ErrBlockTooLarge
	}
	crc := crc32.Checksum(b.Data, castagnoli)
	buf, err := c.Compress(append(b.Compressed[:0], f.header(0, 0, 0, 0)...), b.Data)
	if err != nil {
		return err
	}
	clen := len(buf) - framedHeaderSize
	copy(buf, f.header(0, clen, len(b.Data), crc))
	b.Compressed = buf
	b.Subs = append(b.Subs[:0], SubBlock{Compressed: len(buf), Uncompressed: len(b.Data), CRC32: crc})
	return nil
}
