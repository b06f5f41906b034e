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

// elzip is a high-performance tool for parallel block compression.
// It reads and writes BGZF files, which any gzip tool can decompress,
// and framed block streams with a choice of codecs.
//
// Please see https://github.com/exascience/elzip for a documentation
// of the tool.
package main

import (
	"fmt"
	"os"

	"github.com/exascience/elzip/cmd"
	"github.com/exascience/elzip/internal"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: compress, decompress, recompress, index, verify, checksum")
	fmt.Fprint(os.Stderr, "\n", cmd.CompressHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DecompressHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.RecompressHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.IndexHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.VerifyHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ChecksumHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		internal.Log.Error().Msg("Incorrect number of parameters.")
		fmt.Fprintln(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "compress":
		err = cmd.Compress()
	case "decompress":
		err = cmd.Decompress()
	case "recompress":
		err = cmd.Recompress()
	case "index":
		err = cmd.Index()
	case "verify":
		err = cmd.Verify()
	case "checksum":
		err = cmd.Checksum()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		internal.Log.Error().Str("command", os.Args[1]).Msg("Unknown command.")
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		internal.Log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}
