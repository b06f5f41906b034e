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

	"github.com/pierrec/lz4/v4"
)

type (
	lz4Codec struct{}

	// lz4Compressor uses the fast compressor for level 0 and the
	// high compression compressor otherwise.
	lz4Compressor struct {
		fast lz4.Compressor
		hc   *lz4.CompressorHC
	}

	lz4Decompressor struct{}
)

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func (lz4Codec) Name() string      { return "lz4" }
func (lz4Codec) ID() byte          { return 3 }
func (lz4Codec) DefaultLevel() int { return 0 }

// NewCompressor accepts levels from 0 (fast) to 9.
func (lz4Codec) NewCompressor(level int) (Compressor, error) {
	if level < 0 || level > 9 {
		return nil, fmt.Errorf("invalid lz4 compression level %v in lz4 NewCompressor", level)
	}
	c := &lz4Compressor{}
	if level > 0 {
		c.hc = &lz4.CompressorHC{Level: lz4Levels[level-1]}
	}
	return c, nil
}

func (lz4Codec) NewDecompressor() (Decompressor, error) {
	return lz4Decompressor{}, nil
}

func (c *lz4Compressor) Compress(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	bound := lz4.CompressBlockBound(len(src))
	dst = slices.Grow(dst, bound)
	out := dst[len(dst) : len(dst)+bound]
	var (
		n   int
		err error
	)
	if c.hc != nil {
		n, err = c.hc.CompressBlock(src, out)
	} else {
		n, err = c.fast.CompressBlock(src, out)
	}
	if err != nil {
		return dst, fmt.Errorf("%v in lz4 Compress", err)
	}
	return dst[:len(dst)+n], nil
}

func (lz4Decompressor) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return n, fmt.Errorf("%v in lz4 Decompress", err)
	}
	return n, nil
}
