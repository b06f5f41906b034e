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

package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/exascience/pargo/pipeline"
	"github.com/google/uuid"
)

// RunPipeline is p.Run() followed by p.Err().
func RunPipeline(p *pipeline.Pipeline) error {
	p.Run()
	return p.Err()
}

// Close closes c and stores its error in *err unless *err is
// already set. It is meant to be deferred.
func Close(c io.Closer, err *error) {
	if nerr := c.Close(); *err == nil {
		*err = nerr
	}
}

// An OutputFile is written under a temporary name in the directory of
// its final name, and renamed into place by Commit. Abort removes the
// temporary file. Either Commit or Abort must be called.
type OutputFile struct {
	*os.File
	final string
}

// CreateOutput creates a temporary file next to filename. The
// temporary name carries runID so that concurrent runs do not clash.
func CreateOutput(filename string, runID uuid.UUID) (*OutputFile, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%v.%v.tmp", filepath.Base(filename), runID))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	return &OutputFile{File: f, final: filename}, nil
}

// Commit closes the temporary file and renames it to its final name.
func (f *OutputFile) Commit() error {
	if err := f.File.Sync(); err != nil {
		_ = f.File.Close()
		_ = os.Remove(f.File.Name())
		return err
	}
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return err
	}
	return os.Rename(f.File.Name(), f.final)
}

// Abort closes and removes the temporary file.
func (f *OutputFile) Abort() {
	_ = f.File.Close()
	_ = os.Remove(f.File.Name())
}
