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
	"fmt"
	"io"
	"strings"

	"github.com/exascience/elzip/codec"
)

// A Format is a block container layout. Implementations are stateless
// and safe for concurrent use.
type Format interface {
	Name() string
	// Codec is the codec of the block payloads.
	Codec() codec.Codec
	// MaxWindow is the largest window that Encode accepts.
	MaxWindow() int
	// ReadBlock reads the next physical block into b.Compressed and
	// fills in b.CRC32 and b.Size. It returns io.EOF only if the stream
	// ends before the first byte of a block; a partial block is
	// ErrCorrupt.
	ReadBlock(r *bufio.Reader, b *Block) error
	// Decode decompresses the payload of a block that was read into
	// b.Data, and checks its size and checksum.
	Decode(d codec.Decompressor, b *Block) error
	// Encode compresses the window in b.Data into one or two physical
	// blocks in b.Compressed, described by b.Subs.
	Encode(c codec.Compressor, b *Block) error
	// EOF returns the marker that terminates a stream.
	EOF() []byte
	// IsEOF reports whether b is an EOF marker.
	IsEOF(b *Block) bool
}

// FormatByName returns the format with the given name: "bgzf", or
// "framed-" followed by a codec name.
func FormatByName(name string) (Format, error) {
	if name == "bgzf" {
		return BGZF, nil
	}
	if rest, ok := strings.CutPrefix(name, "framed-"); ok {
		c, err := codec.Lookup(rest)
		if err != nil {
			return nil, err
		}
		return Framed(c), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormat, name)
}

// IsGzip determines if the given reader produces a gzip file. It
// only peeks at the first two bytes.
func IsGzip(r *bufio.Reader) (bool, error) {
	magic, err := r.Peek(2)
	if err != nil {
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

// Detect determines the format of the stream produced by r by peeking
// at its first bytes. An empty stream is ErrMissingEOF.
func Detect(r *bufio.Reader) (Format, error) {
	magic, err := r.Peek(len(framedMagic) + 1)
	if len(magic) == 0 && err == io.EOF {
		return nil, ErrMissingEOF
	}
	switch {
	case len(magic) >= 4 && bytes.Equal(magic[:4], bgzfMagic):
		return BGZF, nil
	case len(magic) >= 5 && bytes.Equal(magic[:4], framedMagic):
		c, cerr := codec.ByID(magic[4])
		if cerr != nil {
			return nil, corrupt("%v", cerr)
		}
		return Framed(c), nil
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		return nil, fmt.Errorf("%w: gzip file without BGZF blocks", ErrUnknownFormat)
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return nil, corrupt("truncated header")
	case err != nil:
		return nil, fmt.Errorf("%v in Detect", err)
	default:
		return nil, ErrUnknownFormat
	}
}
