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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elzip/blockio"
	"github.com/exascience/elzip/codec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "elzip.toml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0600))
	return filename
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(ThreadsVariable, "")
	_, err := DefaultConfig()
	assert.Error(t, err)

	t.Setenv(ThreadsVariable, " 6 ")
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Threads)
	assert.Equal(t, "bgzf", cfg.Format)
	assert.Nil(t, cfg.Level)

	format, err := cfg.BlockFormat()
	require.NoError(t, err)
	assert.Equal(t, blockio.BGZF, format)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(ThreadsVariable, "2")
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	filename := writeConfig(t, `
threads = 8
format = "framed"
codec = "lz4"
level = 9
log-level = "debug"
`)
	require.NoError(t, LoadConfig(filename, &cfg))
	assert.Equal(t, 8, cfg.Threads)
	require.NotNil(t, cfg.Level)
	assert.Equal(t, 9, *cfg.Level)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Timed)

	format, err := cfg.BlockFormat()
	require.NoError(t, err)
	assert.Equal(t, codec.LZ4, format.Codec())
	opts, err := cfg.WriterOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestLoadConfigErrors(t *testing.T) {
	var cfg Config
	assert.Error(t, LoadConfig(writeConfig(t, `thread = 8`), &cfg))
	assert.Error(t, LoadConfig(writeConfig(t, `threads = "many"`), &cfg))
	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), &cfg))

	cfg.Format = "xz"
	_, err := cfg.BlockFormat()
	assert.True(t, errors.Is(err, blockio.ErrUnknownFormat))
	cfg.Format, cfg.Codec = "framed", "brotli"
	_, err = cfg.WriterOptions()
	assert.True(t, errors.Is(err, codec.ErrUnknownCodec))
}
