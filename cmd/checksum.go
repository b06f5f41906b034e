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
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/internal"
	"github.com/exascience/elzip/scheduler"
)

// ChecksumHelp is the help string for this command.
const ChecksumHelp = "\nchecksum parameters:\n" +
	"elzip checksum file-or-directory [file-or-directory ...]\n" +
	"[--files-in-parallel nr]\n" +
	commonHelp

// A contentSum identifies the uncompressed content of a file.
type contentSum struct {
	crc32  uint32
	xxhash uint64
	size   int64
	blocks int
}

func (sum contentSum) String() string {
	return fmt.Sprintf("%08x  %016x  %v", sum.crc32, sum.xxhash, sum.size)
}

// Checksum implements the elzip checksum command. It prints the
// checksums of the uncompressed content of each file, in the order of
// the arguments. All files are read on one shared thread pool.
func Checksum() error {
	s, files, parallel := parseFiles("checksum", ChecksumHelp, bgzfExtensions)
	return s.timedRun("Computing checksums.", func() (err error) {
		pool := blockio.NewThreadPool(s.cfg.Threads)
		defer func() {
			pool.Terminate()
			if jerr := pool.Join(); err == nil && !errors.Is(jerr, blockio.ErrClosed) {
				err = jerr
			}
		}()
		sums := make([]contentSum, len(files))
		if err := forEachFile(files, parallel, func(i int, file string) (err error) {
			sums[i], err = s.checksumFile(file, pool)
			return err
		}); err != nil {
			return err
		}
		for i, file := range files {
			fmt.Fprintf(os.Stdout, "%v  %v\n", sums[i], file)
			s.logger.Debug().Str("file", file).Int("blocks", sums[i].blocks).Msg("Checksum")
		}
		return nil
	})
}

func (s *session) checksumFile(filename string, pool *scheduler.ThreadPool) (sum contentSum, err error) {
	in, err := openInput(filename)
	if err != nil {
		return sum, err
	}
	defer internal.Close(in, &err)
	opts := append(s.cfg.ReaderOptions(), blockio.WithThreadPool(pool), blockio.WithLogger(s.logger))
	r, err := blockio.NewReader(internal.RetryReader(in), opts...)
	if err != nil {
		return sum, err
	}
	defer internal.Close(r, &err)
	var blocks int
	r.OnBlock(func(blockio.BlockInfo) { blocks++ })
	sum, err = sumContent(r, sum)
	sum.blocks = blocks
	return sum, err
}

// sumContent reads r to the end and adds its checksums to sum.
func sumContent(r io.Reader, sum contentSum) (contentSum, error) {
	crc := crc32.NewIEEE()
	digest := xxhash.New()
	buf := internal.ReserveByteBuffer()
	defer internal.ReleaseByteBuffer(buf)
	buf = buf[:cap(buf)]
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = crc.Write(buf[:n])
			_, _ = digest.Write(buf[:n])
			sum.size += int64(n)
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return sum, err
		}
	}
	sum.crc32 = crc.Sum32()
	sum.xxhash = digest.Sum64()
	return sum, nil
}
