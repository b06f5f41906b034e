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
	"compress/flate"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/scheduler"
)

func randomBytes(size int, seed int64) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

// textBytes returns compressible data.
func textBytes(size int, seed int64) []byte {
	rnd := rand.New(rand.NewSource(seed))
	bases := []byte("ACGT")
	data := make([]byte, size)
	for i := range data {
		if i%80 == 79 {
			data[i] = '\n'
		} else {
			data[i] = bases[rnd.Intn(len(bases))]
		}
	}
	return data
}

func bufioReader(data []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(data))
}

func compress(t *testing.T, data []byte, opts ...Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts...)
	require.NoError(t, err)
	// odd chunk sizes exercise partial windows
	for chunk := 10007; len(data) > 0; {
		n := min(chunk, len(data))
		m, err := w.Write(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, m)
		data = data[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decompress(compressed []byte, opts ...Option) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(compressed), opts...)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return data, err
}

// physicalBlocks splits a BGZF stream without using the package's own
// parser.
func physicalBlocks(t *testing.T, stream []byte) [][]byte {
	t.Helper()
	var blocks [][]byte
	for len(stream) > 0 {
		require.GreaterOrEqual(t, len(stream), 28)
		size := int(binary.LittleEndian.Uint16(stream[16:18])) + 1
		require.LessOrEqual(t, size, len(stream))
		blocks = append(blocks, stream[:size])
		stream = stream[size:]
	}
	return blocks
}

func TestRoundTrip(t *testing.T) {
	for _, threads := range []int{1, 4} {
		for _, size := range []int{0, 1, 1000, DefaultWindow, DefaultWindow + 1, 3*MaxBlockSize + 17} {
			data := textBytes(size, int64(size))
			compressed := compress(t, data, WithThreads(threads))
			assert.True(t, bytes.HasSuffix(compressed, bgzfEOF))
			result, err := decompress(compressed, WithThreads(threads))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, result), "size %v threads %v", size, threads)
		}
	}
}

func TestGzipCompatibility(t *testing.T) {
	data := textBytes(5*DefaultWindow+123, 7)
	compressed := compress(t, data, WithThreads(3))
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	result, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, result))

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err = gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	_, err = NewReader(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestLargeRandomStream(t *testing.T) {
	data := randomBytes(10<<20, 42)
	var written []BlockInfo
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithThreads(4), WithWindow(64<<10))
	require.NoError(t, err)
	w.OnBlockWritten(func(info BlockInfo) { written = append(written, info) })
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	compressed := buf.Bytes()

	result, err := decompress(compressed, WithThreads(4))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, result))

	blocks := physicalBlocks(t, compressed)
	require.Equal(t, len(written)+1, len(blocks))
	for i, block := range blocks {
		trailer := block[len(block)-8:]
		inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(block[18 : len(block)-8])))
		require.NoError(t, err)
		require.Equal(t, binary.LittleEndian.Uint32(trailer[4:]), uint32(len(inflated)))
		require.Equal(t, binary.LittleEndian.Uint32(trailer[:4]), crc32.ChecksumIEEE(inflated), "block %v", i)
		if i < len(written) {
			assert.Equal(t, written[i].CRC32, crc32.ChecksumIEEE(inflated))
		}
	}
	// incompressible 64 KiB windows never fit into one block
	for _, info := range written {
		assert.Equal(t, 32<<10, info.UncompressedSize)
	}
}

func TestBlockOrder(t *testing.T) {
	data := textBytes(40*DefaultWindow, 3)
	var written []BlockInfo
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithThreads(8), WithBuffers(16))
	require.NoError(t, err)
	w.OnBlockWritten(func(info BlockInfo) { written = append(written, info) })
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var offset, uoffset int64
	for i, info := range written {
		assert.Equal(t, uint64(i), info.ID)
		assert.Equal(t, offset, info.Offset)
		assert.Equal(t, uoffset, info.Uncompressed)
		offset += int64(info.CompressedSize)
		uoffset += int64(info.UncompressedSize)
	}
	assert.Equal(t, int64(len(data)), uoffset)
	assert.Equal(t, int64(buf.Len()-len(bgzfEOF)), offset)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), WithThreads(8), WithBuffers(16))
	require.NoError(t, err)
	var read []BlockInfo
	r.OnBlock(func(info BlockInfo) { read = append(read, info) })
	result, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.True(t, bytes.Equal(data, result))
	require.Len(t, read, len(written)+1)
	for i, info := range read {
		assert.Equal(t, uint64(i), info.ID)
		assert.Equal(t, i == len(read)-1, info.Final)
		if i < len(written) {
			assert.Equal(t, written[i].Offset, info.Offset)
			assert.Equal(t, written[i].CRC32, info.CRC32)
		}
	}
}

func TestTruncatedStream(t *testing.T) {
	compressed := compress(t, textBytes(3*DefaultWindow, 5))

	// final block truncated in the middle of its header
	_, err := decompress(compressed[:len(compressed)-len(bgzfEOF)+14])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt), err.Error())
	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr))
	assert.Equal(t, uint64(3), blockErr.Block)

	// data block truncated in the middle of its payload
	_, err = decompress(compressed[:len(compressed)-len(bgzfEOF)-100])
	assert.True(t, errors.Is(err, ErrCorrupt))

	// no EOF marker
	_, err = decompress(compressed[:len(compressed)-len(bgzfEOF)])
	assert.True(t, errors.Is(err, ErrMissingEOF))

	// empty input
	_, err = decompress(nil)
	assert.True(t, errors.Is(err, ErrMissingEOF))
	_, err = decompress(nil, WithFormat(BGZF))
	assert.True(t, errors.Is(err, ErrMissingEOF))
}

func TestChecksumMismatch(t *testing.T) {
	compressed := compress(t, textBytes(4*DefaultWindow, 6))
	blocks := physicalBlocks(t, compressed)
	corrupted := append([]byte(nil), compressed...)
	offset := len(blocks[0]) + len(blocks[1])
	corrupted[offset+len(blocks[2])-8] ^= 0xff
	_, err := decompress(corrupted, WithThreads(4))
	require.True(t, errors.Is(err, ErrChecksum))
	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr))
	assert.Equal(t, uint64(2), blockErr.Block)
	assert.Equal(t, int64(offset), blockErr.Offset)
}

func TestFramedRoundTrip(t *testing.T) {
	for _, c := range codec.All() {
		t.Run(c.Name(), func(t *testing.T) {
			format := Framed(c)
			for _, data := range [][]byte{nil, textBytes(7*MaxBlockSize+3, 8), randomBytes(2*MaxBlockSize, 9)} {
				compressed := compress(t, data, WithFormat(format), WithWindow(MaxBlockSize), WithThreads(3))
				assert.True(t, bytes.HasSuffix(compressed, format.EOF()))
				detected, err := Detect(bufioReader(compressed))
				require.NoError(t, err)
				assert.Equal(t, format.Name(), detected.Name())
				result, err := decompress(compressed, WithThreads(3))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, result))
			}
		})
	}
}

func TestFramedCorruption(t *testing.T) {
	compressed := compress(t, textBytes(3*MaxBlockSize, 10), WithFormat(Framed(codec.Zstd)), WithWindow(MaxBlockSize))
	corrupted := append([]byte(nil), compressed...)
	corrupted[14] ^= 0x01
	_, err := decompress(corrupted)
	assert.True(t, errors.Is(err, ErrChecksum))

	_, err = decompress(compressed[:len(compressed)-5])
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestFormatByName(t *testing.T) {
	format, err := FormatByName("bgzf")
	require.NoError(t, err)
	assert.Equal(t, BGZF, format)
	format, err = FormatByName("framed-lz4")
	require.NoError(t, err)
	assert.Equal(t, codec.LZ4, format.Codec())
	_, err = FormatByName("framed-brotli")
	assert.True(t, errors.Is(err, codec.ErrUnknownCodec))
	_, err = FormatByName("xz")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
	_, err = Detect(bufioReader([]byte("plain text")))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestInvalidWriterOptions(t *testing.T) {
	_, err := NewWriter(io.Discard, WithWindow(MaxBlockSize+1))
	assert.Error(t, err)
	_, err = NewWriter(io.Discard, WithLevel(42))
	assert.Error(t, err)
	pool := scheduler.New(1)
	defer func() {
		pool.Terminate()
		assert.NoError(t, pool.Join())
	}()
	assert.Panics(t, func() {
		_, _ = NewWriter(io.Discard, WithThreadPool(pool))
	})
}

type failingWriter struct {
	budget int
}

var errDiskFull = errors.New("disk full")

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.budget {
		return 0, errDiskFull
	}
	w.budget -= len(p)
	return len(p), nil
}

func TestWriteError(t *testing.T) {
	w, err := NewWriter(&failingWriter{budget: 100000}, WithThreads(2), WithBuffers(2))
	require.NoError(t, err)
	data := randomBytes(50*DefaultWindow, 11)
	_, werr := w.Write(data)
	cerr := w.Close()
	if werr != nil {
		assert.True(t, errors.Is(werr, errDiskFull))
	}
	assert.True(t, errors.Is(cerr, errDiskFull))
	_, err = w.Write(data[:10])
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestSharedThreadPool(t *testing.T) {
	data := textBytes(20*DefaultWindow+99, 12)
	compressed := compress(t, data, WithLevel(1))

	pool := NewThreadPool(4)
	r, err := NewReader(bytes.NewReader(compressed), WithThreadPool(pool))
	require.NoError(t, err)
	var out bytes.Buffer
	index := &Index{}
	w, err := NewWriter(&out, WithThreadPool(pool), WithLevel(9), WithIndex(index))
	require.NoError(t, err)
	n, err := io.Copy(w, r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	require.NoError(t, r.Close())
	require.NoError(t, w.Close())
	pool.Terminate()
	require.NoError(t, pool.Join())
	assert.NotEqual(t, r.Stream(), w.Stream())

	result, err := decompress(out.Bytes())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, result))
	assert.Equal(t, uint64(len(data)), index.Size())
}

func TestReaderCloseEarly(t *testing.T) {
	compressed := compress(t, textBytes(50*DefaultWindow, 13))
	r, err := NewReader(bytes.NewReader(compressed), WithThreads(4), WithBuffers(4))
	require.NoError(t, err)
	buf := make([]byte, 1000)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.True(t, errors.Is(err, ErrClosed))
}

func writeTempFile(t *testing.T, data []byte, opts ...Option) (string, *Index) {
	t.Helper()
	index := &Index{}
	compressed := compress(t, data, append(opts, WithIndex(index))...)
	filename := filepath.Join(t.TempDir(), "data.gz")
	require.NoError(t, os.WriteFile(filename, compressed, 0600))
	return filename, index
}
