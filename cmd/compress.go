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
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/internal"
)

// CompressHelp is the help string for this command.
const CompressHelp = "\ncompress parameters:\n" +
	"elzip compress input-file output-file\n" +
	"[--format bgzf|framed]\n" +
	"[--codec name]\n" +
	"[--compression-level nr]\n" +
	"[--window nr]\n" +
	"[--index]\n" +
	commonHelp

// DecompressHelp is the help string for this command.
const DecompressHelp = "\ndecompress parameters:\n" +
	"elzip decompress input-file output-file\n" +
	commonHelp

// RecompressHelp is the help string for this command.
const RecompressHelp = "\nrecompress parameters:\n" +
	"elzip recompress input-file output-file\n" +
	"[--format bgzf|framed]\n" +
	"[--codec name]\n" +
	"[--compression-level nr]\n" +
	"[--window nr]\n" +
	"[--index]\n" +
	commonHelp

// transferStats summarizes one run of a command.
type transferStats struct {
	bytes  int64
	blocks int
	digest uint64
}

func (s transferStats) log(logger zerolog.Logger, msg string) {
	logger.Info().
		Int64("bytes", s.bytes).
		Int("blocks", s.blocks).
		Str("xxhash64", fmt.Sprintf("%016x", s.digest)).
		Msg(msg)
}

func parseTransfer(name, help string, compressing bool) (s *session, input, output string) {
	var flags flag.FlagSet
	if len(os.Args) < 4 {
		fmt.Fprint(os.Stderr, "Incorrect number of parameters.\n", help)
		os.Exit(1)
	}
	input = getFilename(os.Args[2], help)
	output = getFilename(os.Args[3], help)
	s, err := newSession(&flags, os.Args[4:])
	if err != nil {
		internal.Log.Fatal().Err(err).Msg("Invalid configuration.")
	}
	if compressing {
		s.addCompressionFlags(&flags)
	}
	parseFlags(&flags, os.Args[4:], help)
	s.checkThreads(help)

	sanityChecksFailed := false
	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if compressing {
		if _, err := s.cfg.WriterOptions(); err != nil {
			internal.Log.Error().Err(err).Msg("Error: Invalid output settings.")
			sanityChecksFailed = true
		} else if format, _ := s.cfg.BlockFormat(); s.cfg.Index && format != blockio.BGZF {
			internal.Log.Error().Msg("Error: --index is only supported for bgzf output.")
			sanityChecksFailed = true
		}
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}

	fullInput, _ := internal.FullPathname(input)
	fullOutput, _ := internal.FullPathname(output)
	command := s.commandLine(name, fullInput, fullOutput)
	if compressing {
		if format, _ := s.cfg.BlockFormat(); format == blockio.BGZF {
			fmt.Fprint(command, " --format bgzf")
		} else {
			fmt.Fprint(command, " --format framed --codec ", format.Codec().Name())
		}
		if s.cfg.Level != nil {
			fmt.Fprint(command, " --compression-level ", *s.cfg.Level)
		}
		if s.cfg.Window > 0 {
			fmt.Fprint(command, " --window ", s.cfg.Window)
		}
		if s.cfg.Index {
			fmt.Fprint(command, " --index")
		}
	}
	if err := s.start(command.String()); err != nil {
		internal.Log.Fatal().Err(err).Msg("Cannot start logging.")
	}
	return s, fullInput, fullOutput
}

// Compress implements the elzip compress command.
func Compress() error {
	s, input, output := parseTransfer("compress", CompressHelp, true)
	return s.timedRun("Compressing "+input+".", func() error {
		stats, err := s.compressFile(input, output)
		if err == nil {
			stats.log(s.logger, "Compressed "+output)
		}
		return err
	})
}

// Decompress implements the elzip decompress command.
func Decompress() error {
	s, input, output := parseTransfer("decompress", DecompressHelp, false)
	return s.timedRun("Decompressing "+input+".", func() error {
		stats, err := s.decompressFile(input, output)
		if err == nil {
			stats.log(s.logger, "Decompressed "+output)
		}
		return err
	})
}

// Recompress implements the elzip recompress command.
func Recompress() error {
	s, input, output := parseTransfer("recompress", RecompressHelp, true)
	return s.timedRun("Recompressing "+input+".", func() error {
		stats, err := s.recompressFile(input, output)
		if err == nil {
			stats.log(s.logger, "Recompressed "+output)
		}
		return err
	})
}

func openInput(filename string) (*os.File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	internal.FadviseSequential(f)
	return f, nil
}

// createOutput opens a block writer on a temporary file that replaces
// filename on commit. It also returns the index the writer fills, if
// one is requested.
func (s *session) createOutput(filename string, opts ...blockio.Option) (*internal.OutputFile, *blockio.Writer, *blockio.Index, error) {
	writerOpts, err := s.cfg.WriterOptions()
	if err != nil {
		return nil, nil, nil, err
	}
	writerOpts = append(writerOpts, opts...)
	var index *blockio.Index
	if s.cfg.Index {
		index = &blockio.Index{}
		writerOpts = append(writerOpts, blockio.WithIndex(index))
	}
	writerOpts = append(writerOpts, blockio.WithLogger(s.logger))
	out, err := internal.CreateOutput(filename, s.runID)
	if err != nil {
		return nil, nil, nil, err
	}
	w, err := blockio.NewWriter(out, writerOpts...)
	if err != nil {
		out.Abort()
		return nil, nil, nil, err
	}
	return out, w, index, nil
}

// finishOutput closes w and commits out, or aborts out on failure.
func finishOutput(out *internal.OutputFile, w *blockio.Writer, index *blockio.Index, filename string, err error) error {
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return err
	}
	if index != nil {
		return index.SaveIndex(blockio.IndexFilename(filename))
	}
	return nil
}

func (s *session) compressFile(input, output string) (stats transferStats, err error) {
	in, err := openInput(input)
	if err != nil {
		return stats, err
	}
	defer internal.Close(in, &err)

	out, w, index, err := s.createOutput(output)
	if err != nil {
		return stats, err
	}
	w.OnBlockWritten(func(blockio.BlockInfo) { stats.blocks++ })
	digest := xxhash.New()
	stats.bytes, err = io.Copy(w, io.TeeReader(internal.RetryReader(in), digest))
	err = finishOutput(out, w, index, output, err)
	stats.digest = digest.Sum64()
	return stats, err
}

func (s *session) decompressFile(input, output string) (stats transferStats, err error) {
	in, err := openInput(input)
	if err != nil {
		return stats, err
	}
	defer internal.Close(in, &err)

	opts := append(s.cfg.ReaderOptions(), blockio.WithLogger(s.logger))
	r, err := blockio.NewReader(internal.RetryReader(in), opts...)
	if err != nil {
		return stats, err
	}
	defer internal.Close(r, &err)
	r.OnBlock(func(info blockio.BlockInfo) {
		if info.Sub == 0 {
			stats.blocks++
		}
	})

	out, err := internal.CreateOutput(output, s.runID)
	if err != nil {
		return stats, err
	}
	digest := xxhash.New()
	buf := bufio.NewWriterSize(internal.RetryWriter(io.MultiWriter(out, digest)), 1<<20)
	stats.bytes, err = r.WriteTo(buf)
	if err == nil {
		err = buf.Flush()
	}
	if err != nil {
		out.Abort()
		return stats, err
	}
	stats.digest = digest.Sum64()
	return stats, out.Commit()
}

// recompressFile converts input to the configured output format. The
// reader and the writer share one thread pool.
func (s *session) recompressFile(input, output string) (stats transferStats, err error) {
	in, err := openInput(input)
	if err != nil {
		return stats, err
	}
	defer internal.Close(in, &err)

	pool := blockio.NewThreadPool(s.cfg.Threads)
	defer func() {
		pool.Terminate()
		if jerr := pool.Join(); err == nil && !errors.Is(jerr, blockio.ErrClosed) {
			err = jerr
		}
	}()

	opts := append(s.cfg.ReaderOptions(), blockio.WithThreadPool(pool), blockio.WithLogger(s.logger))
	r, err := blockio.NewReader(internal.RetryReader(in), opts...)
	if err != nil {
		return stats, err
	}
	defer internal.Close(r, &err)

	out, w, index, err := s.createOutput(output, blockio.WithThreadPool(pool))
	if err != nil {
		return stats, err
	}
	w.OnBlockWritten(func(blockio.BlockInfo) { stats.blocks++ })
	digest := xxhash.New()
	stats.bytes, err = io.Copy(io.MultiWriter(w, digest), r)
	err = finishOutput(out, w, index, output, err)
	stats.digest = digest.Sum64()
	return stats, err
}
