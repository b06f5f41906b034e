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
	"fmt"
	"slices"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
)

type (
	snappyCodec struct{}
	snappyCompressor struct{}
	snappyDecompressor struct{}
)

func (snappyCodec) Name() string      { return "snappy" }
func (snappyCodec) ID() byte          { return 4 }
func (snappyCodec) DefaultLevel() int { return 0 }

// NewCompressor ignores the level: snappy has only one.
func (snappyCodec) NewCompressor(int) (Compressor, error) {
	return snappyCompressor{}, nil
}

func (snappyCodec) NewDecompressor() (Decompressor, error) {
	return snappyDecompressor{}, nil
}

func (snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	bound := snappy.MaxEncodedLen(len(src))
	if bound < 0 {
		return dst, fmt.Errorf("block of %v bytes too large in snappy Compress", len(src))
	}
	dst = slices.Grow(dst, bound)
	out := snappy.Encode(dst[len(dst):len(dst)+bound], src)
	return dst[:len(dst)+len(out)], nil
}

func (snappyDecompressor) Decompress(dst, src []byte) (int, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, fmt.Errorf("%v in snappy Decompress", err)
	}
	if n > len(dst) {
		return 0, ErrShortBuffer
	}
	out, err := snappy.Decode(dst[:n], src)
	if err != nil {
		return 0, fmt.Errorf("%v in snappy Decompress", err)
	}
	return len(out), nil
}

type (
	s2Codec struct{}

	s2Compressor struct {
		encode func(dst, src []byte) []byte
	}

	s2Decompressor struct{}
)

func (s2Codec) Name() string      { return "s2" }
func (s2Codec) ID() byte          { return 6 }
func (s2Codec) DefaultLevel() int { return 1 }

// NewCompressor maps level 1 to the default encoder, level 2 to the
// better encoder and level 3 to the best encoder.
func (s2Codec) NewCompressor(level int) (Compressor, error) {
	switch level {
	case 0, 1:
		return s2Compressor{s2.Encode}, nil
	case 2:
		return s2Compressor{s2.EncodeBetter}, nil
	case 3:
		return s2Compressor{s2.EncodeBest}, nil
	default:
		return nil, fmt.Errorf("invalid s2 compression level %v in s2 NewCompressor", level)
	}
}

func (s2Codec) NewDecompressor() (Decompressor, error) {
	return s2Decompressor{}, nil
}

func (c s2Compressor) Compress(dst, src []byte) ([]byte, error) {
	bound := s2.MaxEncodedLen(len(src))
	if bound < 0 {
		return dst, fmt.Errorf("block of %v bytes too large in s2 Compress", len(src))
	}
	dst = slices.Grow(dst, bound)
	out := c.encode(dst[len(dst):len(dst)+bound], src)
	return dst[:len(dst)+len(out)], nil
}

func (s2Decompressor) Decompress(dst, src []byte) (int, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return 0, fmt.Errorf("%v in s2 Decompress", err)
	}
	if n > len(dst) {
		return 0, ErrShortBuffer
	}
	out, err := s2.Decode(dst[:n], src)
	if err != nil {
		return 0, fmt.Errorf("%v in s2 Decompress", err)
	}
	return len(out), nil
}
