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

package cmd

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/utils"
)

func testSession(t *testing.T, configure func(*utils.Config)) *session {
	t.Helper()
	cfg, err := utils.DefaultConfig()
	require.NoError(t, err)
	cfg.Threads = 3
	if configure != nil {
		configure(&cfg)
	}
	return &session{cfg: cfg, runID: uuid.New(), logger: zerolog.Nop()}
}

func writeInput(t *testing.T, dir string, size int, seed int64) (string, []byte) {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	words := []string{"chr1", "chr2", "read", "mapped", "42M", "60", "*", "=", "ACGT", "TTGA"}
	var buf bytes.Buffer
	for buf.Len() < size {
		buf.WriteString(words[rnd.Intn(len(words))])
		if rnd.Intn(8) == 0 {
			buf.WriteByte('\n')
		} else {
			buf.WriteByte('\t')
		}
	}
	data := buf.Bytes()[:size]
	filename := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(filename, data, 0666))
	return filename, data
}

func TestFindConfig(t *testing.T) {
	for _, test := range []struct {
		args     []string
		expected string
	}{
		{nil, ""},
		{[]string{"--nr-of-threads", "4"}, ""},
		{[]string{"--config", "a.toml"}, "a.toml"},
		{[]string{"-config", "b.toml", "--index"}, "b.toml"},
		{[]string{"--index", "--config=c.toml"}, "c.toml"},
		{[]string{"--config"}, ""},
		{[]string{"config", "d.toml"}, ""},
	} {
		assert.Equal(t, test.expected, findConfig(test.args), "%v", test.args)
	}
}

func TestCompressDecompress(t *testing.T) {
	dir := t.TempDir()
	input, data := writeInput(t, dir, 300000, 1)
	output := filepath.Join(dir, "out", "input.txt.gz")

	s := testSession(t, func(cfg *utils.Config) { cfg.Index = true })
	stats, err := s.compressFile(input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stats.bytes)
	assert.Equal(t, xxhash.Sum64(data), stats.digest)
	assert.Greater(t, stats.blocks, 1)

	saved, err := blockio.LoadIndex(blockio.IndexFilename(output))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), saved.Size())

	require.NoError(t, s.verifyFile(output))
	ok, err := isBGZF(output)
	require.NoError(t, err)
	assert.True(t, ok)

	built, err := s.indexFile(output)
	require.NoError(t, err)
	assert.Equal(t, saved.Entries(), built.Entries())

	result := filepath.Join(dir, "result.txt")
	dstats, err := s.decompressFile(output, result)
	require.NoError(t, err)
	assert.Equal(t, stats.bytes, dstats.bytes)
	assert.Equal(t, stats.digest, dstats.digest)
	content, err := os.ReadFile(result)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, content))

	matches, err := filepath.Glob(filepath.Join(dir, "out", ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRecompressFramed(t *testing.T) {
	dir := t.TempDir()
	input, data := writeInput(t, dir, 200000, 2)
	bgzf := filepath.Join(dir, "input.txt.gz")
	framed := filepath.Join(dir, "input.txt.elz")

	s := testSession(t, nil)
	_, err := s.compressFile(input, bgzf)
	require.NoError(t, err)

	level := 1
	f := testSession(t, func(cfg *utils.Config) {
		cfg.Format = "framed"
		cfg.Codec = "lz4"
		cfg.Level = &level
	})
	stats, err := f.recompressFile(bgzf, framed)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(data), stats.digest)

	ok, err := isBGZF(framed)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, f.verifyFile(framed))

	result := filepath.Join(dir, "result.txt")
	_, err = f.decompressFile(framed, result)
	require.NoError(t, err)
	content, err := os.ReadFile(result)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, content))
}

func TestVerifyCorrupt(t *testing.T) {
	dir := t.TempDir()
	input, _ := writeInput(t, dir, 100000, 3)
	output := filepath.Join(dir, "input.txt.gz")
	s := testSession(t, nil)
	_, err := s.compressFile(input, output)
	require.NoError(t, err)

	compressed, err := os.ReadFile(output)
	require.NoError(t, err)
	compressed[100] ^= 0xff
	require.NoError(t, os.WriteFile(output, compressed, 0666))
	assert.Error(t, s.verifyFile(output))
}

func TestChecksum(t *testing.T) {
	dir := t.TempDir()
	s := testSession(t, nil)
	var files []string
	var contents [][]byte
	var written []int
	for i := 0; i < 3; i++ {
		input, data := writeInput(t, dir, 50000+i*70000, int64(10+i))
		output := filepath.Join(dir, filepath.Base(input)+string(rune('a'+i))+".gz")
		stats, err := s.compressFile(input, output)
		require.NoError(t, err)
		files = append(files, output)
		contents = append(contents, data)
		written = append(written, stats.blocks)
	}

	pool := blockio.NewThreadPool(2)
	sums := make([]contentSum, len(files))
	err := forEachFile(files, 2, func(i int, file string) (err error) {
		sums[i], err = s.checksumFile(file, pool)
		return err
	})
	require.NoError(t, err)
	pool.Terminate()
	require.NoError(t, pool.Join())

	for i, data := range contents {
		assert.Equal(t, crc32.ChecksumIEEE(data), sums[i].crc32)
		assert.Equal(t, xxhash.Sum64(data), sums[i].xxhash)
		assert.Equal(t, int64(len(data)), sums[i].size)
		// every data block plus the EOF marker
		assert.Equal(t, written[i]+1, sums[i].blocks)
	}
}

func TestSumContent(t *testing.T) {
	data := []byte("hello, blocks\n")
	sum, err := sumContent(bytes.NewReader(data), contentSum{})
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), sum.crc32)
	assert.Equal(t, int64(len(data)), sum.size)
	assert.Equal(t, fmt.Sprintf("%08x  %016x  %v", crc32.ChecksumIEEE(data), xxhash.Sum64(data), len(data)), sum.String())
}
