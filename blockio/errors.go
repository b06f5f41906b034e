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
	"errors"
	"fmt"
)

var (
	// ErrCorrupt reports a malformed block header, a block size
	// inconsistency, or compressed data that cannot be decoded.
	ErrCorrupt = errors.New("corrupt block")

	// ErrChecksum reports a CRC-32 mismatch of decompressed data.
	ErrChecksum = errors.New("invalid CRC-32 value for a data block")

	// ErrMissingEOF reports a stream that does not end in a proper EOF
	// marker.
	ErrMissingEOF = errors.New("stream does not end in proper EOF marker")

	// ErrBlockTooLarge reports a block that exceeds the limits of its
	// format.
	ErrBlockTooLarge = errors.New("block too large")

	// ErrClosed reports the use of a closed Reader or Writer, or of one
	// whose thread pool was terminated.
	ErrClosed = errors.New("use of closed stream")

	// ErrUnknownFormat is returned by Detect.
	ErrUnknownFormat = errors.New("unknown block format")
)

// A BlockError records the position of a failure in a stream.
type BlockError struct {
	Stream uint64
	Block  uint64
	// Offset is the compressed offset of the block.
	Offset int64
	Err    error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%v in block %v at offset %v of stream %v", e.Err, e.Block, e.Offset, e.Stream)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

func blockError(b *Block, err error) error {
	return &BlockError{Stream: b.Stream, Block: b.ID, Offset: b.Offset, Err: err}
}

func corrupt(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %v", ErrCorrupt, fmt.Sprintf(format, v...))
}
