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

package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/codec"
)

// ThreadsVariable is the environment variable that sets the default
// number of threads.
const ThreadsVariable = "ELZIP_THREADS"

// Config holds the settings shared by the elzip commands. A config
// file in TOML format sets them for all commands; command line flags
// override them.
type Config struct {
	Threads int `toml:"threads"`
	// Buffers is the number of block buffers per stream; 0 means four
	// per thread.
	Buffers int `toml:"buffers"`
	// Format is "bgzf" or "framed".
	Format string `toml:"format"`
	// Codec is the codec of framed output.
	Codec string `toml:"codec"`
	// Level is the compression level; nil means the default level of
	// the codec.
	Level *int `toml:"level"`
	// Window is the number of uncompressed bytes per block; 0 means
	// the default.
	Window   int    `toml:"window"`
	Index    bool   `toml:"index"`
	LogLevel string `toml:"log-level"`
	LogPath  string `toml:"log-path"`
	Timed    bool   `toml:"timed"`
}

// DefaultConfig returns the built-in settings, with the number of
// threads taken from ELZIP_THREADS if it is set.
func DefaultConfig() (Config, error) {
	cfg := Config{
		Format:   "bgzf",
		Codec:    "zstd",
		LogLevel: "info",
		Timed:    true,
	}
	if s, ok := os.LookupEnv(ThreadsVariable); ok {
		threads, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || threads < 0 {
			return cfg, fmt.Errorf("invalid value %q for %v", s, ThreadsVariable)
		}
		cfg.Threads = threads
	}
	return cfg, nil
}

// LoadConfig reads a TOML config file into cfg. Settings that are not
// in the file keep their values. Unknown settings are an error.
func LoadConfig(filename string, cfg *Config) error {
	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return fmt.Errorf("%v in LoadConfig", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown settings %v in config file %v", undecoded, filename)
	}
	return nil
}

// BlockFormat returns the output block format.
func (cfg *Config) BlockFormat() (blockio.Format, error) {
	switch strings.ToLower(cfg.Format) {
	case "", "bgzf":
		return blockio.BGZF, nil
	case "framed":
		c, err := codec.Lookup(cfg.Codec)
		if err != nil {
			return nil, err
		}
		return blockio.Framed(c), nil
	default:
		return nil, fmt.Errorf("%w %q", blockio.ErrUnknownFormat, cfg.Format)
	}
}

// ReaderOptions returns the blockio options of input streams.
func (cfg *Config) ReaderOptions() []blockio.Option {
	opts := []blockio.Option{blockio.WithThreads(cfg.Threads)}
	if cfg.Buffers > 0 {
		opts = append(opts, blockio.WithBuffers(cfg.Buffers))
	}
	return opts
}

// WriterOptions returns the blockio options of output streams.
func (cfg *Config) WriterOptions() ([]blockio.Option, error) {
	format, err := cfg.BlockFormat()
	if err != nil {
		return nil, err
	}
	opts := append(cfg.ReaderOptions(), blockio.WithFormat(format))
	if cfg.Level != nil {
		opts = append(opts, blockio.WithLevel(*cfg.Level))
	}
	if cfg.Window > 0 {
		opts = append(opts, blockio.WithWindow(cfg.Window))
	} else if format != blockio.BGZF {
		opts = append(opts, blockio.WithWindow(blockio.MaxBlockSize))
	}
	return opts, nil
}
