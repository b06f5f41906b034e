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

// Package blockio implements parallel readers and writers of block
// compressed streams on top of a scheduler.ThreadPool.
//
// A Reader reads physical blocks from its input on a pool worker,
// decodes them on any number of workers, and hands them to the
// consumer in their original order. A Writer cuts its input into
// windows, encodes them on any number of workers, and writes the
// resulting blocks in their original order. Block buffers are
// recycled through bounded pools, which provide backpressure.
//
// Two formats are supported: BGZF, bit-compatible with htslib and
// readable by any gzip decoder, and a framed format for the other
// codecs of package codec. BGZF files can be indexed in the .gzi
// layout of htslib, which enables random access through IndexedFile.
package blockio
