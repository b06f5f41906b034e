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

// Package codec wraps block compression libraries behind two small
// interfaces, so that the block pipeline can treat them as opaque
// compress and decompress services.
//
// Compressors and decompressors are not safe for concurrent use. A
// pipeline leases them per call from Compressors and Decompressors
// pools.
package codec

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

type (
	// A Compressor compresses one block at a time.
	Compressor interface {
		// Compress appends the compressed form of src to dst and
		// returns the extended slice.
		Compress(dst, src []byte) ([]byte, error)
	}

	// A Decompressor decompresses one block at a time.
	Decompressor interface {
		// Decompress decompresses src into dst and returns the number
		// of bytes written. It fails with ErrShortBuffer if the
		// result does not fit into dst.
		Decompress(dst, src []byte) (int, error)
	}

	// A Codec creates compressors and decompressors for one format.
	Codec interface {
		Name() string
		// ID is a stable identifier used in framed streams.
		ID() byte
		DefaultLevel() int
		NewCompressor(level int) (Compressor, error)
		NewDecompressor() (Decompressor, error)
	}
)

var (
	// ErrShortBuffer is returned when decompressed data does not fit
	// into the destination buffer.
	ErrShortBuffer = errors.New("codec: decompressed data exceeds destination buffer")

	// ErrUnknownCodec is returned by Lookup and ByID.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// The supported codecs.
var (
	Deflate Codec = deflateCodec{}
	Zlib    Codec = zlibCodec{}
	LZ4     Codec = lz4Codec{}
	Snappy  Codec = snappyCodec{}
	Zstd    Codec = zstdCodec{}
	S2      Codec = s2Codec{}
)

var codecs = []Codec{Deflate, Zlib, LZ4, Snappy, Zstd, S2}

// All returns all supported codecs.
func All() []Codec {
	return append([]Codec(nil), codecs...)
}

// Names returns the names of all supported codecs.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for _, c := range codecs {
		names = append(names, c.Name())
	}
	return names
}

// Lookup returns the codec with the given (case-insensitive) name.
func Lookup(name string) (Codec, error) {
	for _, c := range codecs {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownCodec, name)
}

// ByID returns the codec with the given id.
func ByID(id byte) (Codec, error) {
	for _, c := range codecs {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w with id %v", ErrUnknownCodec, id)
}

// readInto reads the whole stream r into dst. It fails with
// ErrShortBuffer if r produces more than len(dst) bytes.
func readInto(r io.Reader, dst []byte) (n int, err error) {
	for n < len(dst) {
		var m int
		m, err = r.Read(dst[n:])
		n += m
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
	}
	var probe [1]byte
	for {
		m, err := r.Read(probe[:])
		if m > 0 {
			return n, ErrShortBuffer
		}
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
	}
}
