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
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/internal"
)

// IndexHelp is the help string for this command.
const IndexHelp = "\nindex parameters:\n" +
	"elzip index bgzf-file-or-directory [bgzf-file-or-directory ...]\n" +
	"[--files-in-parallel nr]\n" +
	commonHelp

// VerifyHelp is the help string for this command.
const VerifyHelp = "\nverify parameters:\n" +
	"elzip verify bgzf-file-or-directory [bgzf-file-or-directory ...]\n" +
	"[--files-in-parallel nr]\n" +
	commonHelp

// bgzfExtensions are the file extensions that directory arguments are
// expanded to.
var bgzfExtensions = []string{".gz", ".bgz", ".bgzf", ".bam"}

// parseFiles parses a command whose arguments are a list of files or
// directories followed by flags.
func parseFiles(name, help string, exts []string) (s *session, files []string, parallel int) {
	var flags flag.FlagSet
	args := os.Args[2:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "Incorrect number of parameters.\n", help)
		os.Exit(1)
	}
	getFilename(args[0], help)
	i := 0
	for i < len(args) && !strings.HasPrefix(args[i], "-") {
		i++
	}
	paths := args[:i]
	s, err := newSession(&flags, args[i:])
	if err != nil {
		internal.Log.Fatal().Err(err).Msg("Invalid configuration.")
	}
	flags.IntVar(&parallel, "files-in-parallel", 2, "number of files processed in parallel")
	parseFlags(&flags, args[i:], help)
	s.checkThreads(help)

	sanityChecksFailed := false
	for _, path := range paths {
		if !checkExist("", path) {
			sanityChecksFailed = true
		}
	}
	if parallel <= 0 {
		internal.Log.Error().Int("files-in-parallel", parallel).Msg("Error: Invalid files-in-parallel.")
		sanityChecksFailed = true
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}

	files, err = internal.ExpandInputs(paths, exts...)
	if err != nil {
		internal.Log.Fatal().Err(err).Msg("Cannot list input files.")
	}
	command := s.commandLine(name, files...)
	fmt.Fprint(command, " --files-in-parallel ", parallel)
	if err := s.start(command.String()); err != nil {
		internal.Log.Fatal().Err(err).Msg("Cannot start logging.")
	}
	return s, files, parallel
}

// forEachFile calls f for each file, with at most parallel calls at
// the same time, and returns the first error.
func forEachFile(files []string, parallel int, f func(i int, file string) error) error {
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := f(i, file); err != nil {
				return fmt.Errorf("%v: %w", file, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Index implements the elzip index command.
func Index() error {
	s, files, parallel := parseFiles("index", IndexHelp, bgzfExtensions)
	return s.timedRun("Indexing files.", func() error {
		return forEachFile(files, parallel, func(_ int, file string) error {
			idx, err := s.indexFile(file)
			if err == nil {
				s.logger.Info().Str("file", file).Int("entries", idx.Len()).Uint64("size", idx.Size()).Msg("Indexed")
			}
			return err
		})
	})
}

func (s *session) indexFile(filename string) (idx *blockio.Index, err error) {
	in, err := openInput(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(in, &err)
	idx, err = blockio.BuildIndex(internal.RetryReader(in), s.cfg.Threads)
	if err != nil {
		return nil, err
	}
	return idx, idx.SaveIndex(blockio.IndexFilename(filename))
}

// Verify implements the elzip verify command.
func Verify() error {
	s, files, parallel := parseFiles("verify", VerifyHelp, bgzfExtensions)
	return s.timedRun("Verifying files.", func() error {
		return forEachFile(files, parallel, func(_ int, file string) error {
			if err := s.verifyFile(file); err != nil {
				return err
			}
			s.logger.Info().Str("file", file).Msg("Verified")
			return nil
		})
	})
}

// verifyFile checks every block of a file against its CRC32 and size.
// BGZF files are checked in parallel through a memory map, and an
// existing .gzi index is checked against the file as well. Other
// formats are checked by streaming.
func (s *session) verifyFile(filename string) error {
	bgzf, err := isBGZF(filename)
	if err != nil {
		return err
	}
	if !bgzf {
		return s.verifyStream(filename)
	}
	var idx *blockio.Index
	if _, err := os.Stat(blockio.IndexFilename(filename)); err == nil {
		if idx, err = blockio.LoadIndex(blockio.IndexFilename(filename)); err != nil {
			return err
		}
	}
	return blockio.Verify(filename, idx, s.cfg.Threads)
}

func (s *session) verifyStream(filename string) (err error) {
	in, err := openInput(filename)
	if err != nil {
		return err
	}
	defer internal.Close(in, &err)
	r, err := blockio.NewReader(internal.RetryReader(in), append(s.cfg.ReaderOptions(), blockio.WithLogger(s.logger))...)
	if err != nil {
		return err
	}
	defer internal.Close(r, &err)
	_, err = r.WriteTo(io.Discard)
	return err
}

// isBGZF reports whether filename starts with a BGZF block.
func isBGZF(filename string) (ok bool, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer internal.Close(f, &err)
	format, err := blockio.Detect(bufio.NewReader(f))
	if err != nil {
		return false, nil
	}
	return format == blockio.BGZF, nil
}
