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
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

type (
	deflateCodec struct{}

	deflateCompressor struct {
		w *flate.Writer
	}

	deflateDecompressor struct {
		src bytes.Reader
		r   io.ReadCloser
	}
)

func (deflateCodec) Name() string      { return "deflate" }
func (deflateCodec) ID() byte          { return 1 }
func (deflateCodec) DefaultLevel() int { return flate.DefaultCompression }

// NewCompressor returns a raw deflate compressor.
//
// Following zlib, levels range from 1 (BestSpeed) to 9 (BestCompression);
// higher levels typically run slower but compress more. Level 0
// (NoCompression) does not attempt any compression; it only adds the
// necessary DEFLATE framing.
// Level -1 (DefaultCompression) uses the default compression level.
// Level -2 (HuffmanOnly) will use Huffman compression only, giving
// a very fast compression for all types of input, but sacrificing considerable
// compression efficiency.
func (deflateCodec) NewCompressor(level int) (Compressor, error) {
	w, err := flate.NewWriter(io.Discard, level)
	if err != nil {
		return nil, fmt.Errorf("%v in deflate NewCompressor", err)
	}
	return &deflateCompressor{w: w}, nil
}

func (deflateCodec) NewDecompressor() (Decompressor, error) {
	return &deflateDecompressor{}, nil
}

func (c *deflateCompressor) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	c.w.Reset(buf)
	if _, err := c.w.Write(src); err != nil {
		return dst, err
	}
	if err := c.w.Close(); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

func (d *deflateDecompressor) Decompress(dst, src []byte) (int, error) {
	d.src.Reset(src)
	if d.r == nil {
		d.r = flate.NewReader(&d.src)
	} else if err := d.r.(flate.Resetter).Reset(&d.src, nil); err != nil {
		return 0, err
	}
	return readInto(d.r, dst)
}

type (
	zlibCodec struct{}

	zlibCompressor struct {
		w *zlib.Writer
	}

	zlibDecompressor struct {
		src bytes.Reader
		r   io.ReadCloser
	}
)

func (zlibCodec) Name() string      { return "zlib" }
func (zlibCodec) ID() byte          { return 2 }
func (zlibCodec) DefaultLevel() int { return zlib.DefaultCompression }

func (zlibCodec) NewCompressor(level int) (Compressor, error) {
	w, err := zlib.NewWriterLevel(io.Discard, level)
	if err != nil {
		return nil, fmt.Errorf("%v in zlib NewCompressor", err)
	}
	return &zlibCompressor{w: w}, nil
}

func (zlibCodec) NewDecompressor() (Decompressor, error) {
	return &zlibDecompressor{}, nil
}

func (c *zlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	c.w.Reset(buf)
	if _, err := c.w.Write(src); err != nil {
		return dst, err
	}
	if err := c.w.Close(); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

func (d *zlibDecompressor) Decompress(dst, src []byte) (int, error) {
	d.src.Reset(src)
	if d.r == nil {
		r, err := zlib.NewReader(&d.src)
		if err != nil {
			return 0, err
		}
		d.r = r
	} else if err := d.r.(zlib.Resetter).Reset(&d.src, nil); err != nil {
		return 0, err
	}
	return readInto(d.r, dst)
}
