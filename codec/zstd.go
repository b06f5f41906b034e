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

	"github.com/klauspost/compress/zstd"
)

type (
	zstdCodec struct{}

	zstdCompressor struct {
		enc *zstd.Encoder
	}

	zstdDecompressor struct {
		dec *zstd.Decoder
	}
)

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) ID() byte          { return 5 }
func (zstdCodec) DefaultLevel() int { return 3 }

// NewCompressor accepts the zstd command line levels; 0 selects the
// default level.
func (zstdCodec) NewCompressor(level int) (Compressor, error) {
	if level < 0 || level > 22 {
		return nil, fmt.Errorf("invalid zstd compression level %v in zstd NewCompressor", level)
	}
	if level == 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true))
	if err != nil {
		return nil, fmt.Errorf("%v in zstd NewCompressor", err)
	}
	return &zstdCompressor{enc: enc}, nil
}

func (zstdCodec) NewDecompressor() (Decompressor, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%v in zstd NewDecompressor", err)
	}
	return &zstdDecompressor{dec: dec}, nil
}

func (c *zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dst), nil
}

func (d *zstdDecompressor) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	out, err := d.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, fmt.Errorf("%v in zstd Decompress", err)
	}
	if len(out) > len(dst) {
		return 0, ErrShortBuffer
	}
	return len(out), nil
}
