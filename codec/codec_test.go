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
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput(size int) []byte {
	rnd := rand.New(rand.NewSource(int64(size)))
	words := [][]byte{[]byte("ACGT"), []byte("TTAGGG"), []byte("chr1\t"), []byte("read")}
	var buf bytes.Buffer
	for buf.Len() < size {
		if rnd.Intn(4) == 0 {
			buf.WriteByte(byte(rnd.Intn(256)))
		} else {
			buf.Write(words[rnd.Intn(len(words))])
		}
	}
	return buf.Bytes()[:size]
}

func TestRoundTrip(t *testing.T) {
	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			cmp, err := c.NewCompressor(c.DefaultLevel())
			require.NoError(t, err)
			dcmp, err := c.NewDecompressor()
			require.NoError(t, err)
			for _, size := range []int{0, 1, 100, 65280, 65536} {
				src := testInput(size)
				prefix := []byte("prefix")
				compressed, err := cmp.Compress(append([]byte(nil), prefix...), src)
				require.NoError(t, err)
				require.Equal(t, prefix, compressed[:len(prefix)])
				dst := make([]byte, size)
				n, err := dcmp.Decompress(dst, compressed[len(prefix):])
				require.NoError(t, err)
				require.Equal(t, size, n)
				assert.True(t, bytes.Equal(src, dst[:n]), "size %v", size)
			}
		})
	}
}

func TestShortBuffer(t *testing.T) {
	for _, c := range All() {
		t.Run(c.Name(), func(t *testing.T) {
			cmp, err := c.NewCompressor(c.DefaultLevel())
			require.NoError(t, err)
			dcmp, err := c.NewDecompressor()
			require.NoError(t, err)
			src := testInput(4096)
			compressed, err := cmp.Compress(nil, src)
			require.NoError(t, err)
			_, err = dcmp.Decompress(make([]byte, 100), compressed)
			assert.Error(t, err)
		})
	}
}

func TestDeflateShortBufferSentinel(t *testing.T) {
	cmp, err := Deflate.NewCompressor(6)
	require.NoError(t, err)
	compressed, err := cmp.Compress(nil, testInput(1000))
	require.NoError(t, err)
	dcmp, err := Deflate.NewDecompressor()
	require.NoError(t, err)
	_, err = dcmp.Decompress(make([]byte, 999), compressed)
	assert.True(t, errors.Is(err, ErrShortBuffer))
}

func TestCorruptInput(t *testing.T) {
	dcmp, err := Deflate.NewDecompressor()
	require.NoError(t, err)
	_, err = dcmp.Decompress(make([]byte, 100), []byte{0xff, 0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestInvalidLevels(t *testing.T) {
	for _, test := range []struct {
		codec Codec
		level int
	}{
		{Deflate, 42},
		{Zlib, 42},
		{LZ4, 10},
		{Zstd, 23},
		{S2, 4},
	} {
		_, err := test.codec.NewCompressor(test.level)
		assert.Error(t, err, test.codec.Name())
		_, err = NewCompressors(test.codec, test.level)
		assert.Error(t, err, test.codec.Name())
	}
}

func TestLZ4Levels(t *testing.T) {
	cmp, err := LZ4.NewCompressor(0)
	require.NoError(t, err)
	assert.Nil(t, cmp.(*lz4Compressor).hc)
	for level, expected := range map[int]lz4.CompressionLevel{1: lz4.Level1, 5: lz4.Level5, 9: lz4.Level9} {
		cmp, err := LZ4.NewCompressor(level)
		require.NoError(t, err)
		assert.Equal(t, expected, cmp.(*lz4Compressor).hc.Level, "level %v", level)
	}
}

func TestLookup(t *testing.T) {
	for _, c := range All() {
		byName, err := Lookup(c.Name())
		require.NoError(t, err)
		assert.Equal(t, c, byName)
		byID, err := ByID(c.ID())
		require.NoError(t, err)
		assert.Equal(t, c, byID)
	}
	c, err := Lookup("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)
	_, err = Lookup("brotli")
	assert.True(t, errors.Is(err, ErrUnknownCodec))
	_, err = ByID(0)
	assert.True(t, errors.Is(err, ErrUnknownCodec))
	assert.Len(t, Names(), len(All()))
}

func TestLeasesGrowOnlyWithConcurrency(t *testing.T) {
	cmps, err := NewCompressors(Zstd, 1)
	require.NoError(t, err)
	dcmps, err := NewDecompressors(Zstd)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		h := cmps.Lease()
		cmps.Release(h)
	}
	assert.Equal(t, uint64(1), cmps.Capacity())

	src := testInput(10000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := cmps.Lease()
			compressed, err := c.Value.Compress(nil, src)
			cmps.Release(c)
			assert.NoError(t, err)
			d := dcmps.Lease()
			dst := make([]byte, len(src))
			n, err := d.Value.Decompress(dst, compressed)
			dcmps.Release(d)
			assert.NoError(t, err)
			assert.Equal(t, src, dst[:n])
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, cmps.Capacity(), uint64(8))
	assert.LessOrEqual(t, dcmps.Capacity(), uint64(8))
	assert.Equal(t, Zstd, cmps.Codec())
	assert.Equal(t, 1, cmps.Level())
}
