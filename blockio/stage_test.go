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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/freelist"
)

func TestReorder(t *testing.T) {
	pool := freelist.NewBounded(4, newBlock)
	r := newReorder()
	handles := make([]freelist.Handle[*Block], 4)
	for i := range handles {
		handles[i] = pool.Get()
		handles[i].Value.ID = uint64(i)
	}

	assert.False(t, r.complete(2, handles[2]))
	assert.False(t, r.complete(1, handles[1]))
	assert.Equal(t, 2, r.waiting())
	_, ok := r.take()
	assert.False(t, ok)

	assert.True(t, r.complete(0, handles[0]))
	// the releasing party drains everything that is in order
	assert.False(t, r.complete(3, handles[3]))
	for id := uint64(0); id < 4; id++ {
		h, ok := r.take()
		require.True(t, ok)
		assert.Equal(t, id, h.Value.ID)
		pool.Put(h)
	}
	_, ok = r.take()
	assert.False(t, ok)
	assert.Equal(t, 0, r.waiting())
	assert.Equal(t, 4, pool.Available())
}

var errEncode = errors.New("encode failed")

type failingEncoder struct {
	Format
}

func (failingEncoder) Encode(codec.Compressor, *Block) error {
	return errEncode
}

func TestEncodeErrorReturnsWindow(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithFormat(failingEncoder{BGZF}), WithThreads(2), WithBuffers(2))
	require.NoError(t, err)
	n, err := w.Write(textBytes(1000, 1))
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	err = w.Close()
	assert.ErrorIs(t, err, errEncode)
	var blockErr *BlockError
	require.ErrorAs(t, err, &blockErr)
	assert.Equal(t, uint64(0), blockErr.Block)

	outstanding, available := w.windows.Counts()
	assert.Equal(t, 0, outstanding)
	assert.Equal(t, 2, available)
}
