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
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// IsTransient reports whether err is a syscall interruption that
// should simply be retried.
func IsTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

type (
	retryReader struct {
		r io.Reader
	}

	retryWriter struct {
		w io.Writer
	}
)

// RetryReader returns an io.Reader that retries reads failing with
// EINTR or EAGAIN, so that those errors never reach the caller.
func RetryReader(r io.Reader) io.Reader {
	if _, ok := r.(retryReader); ok {
		return r
	}
	return retryReader{r}
}

func (rr retryReader) Read(p []byte) (n int, err error) {
	for {
		n, err = rr.r.Read(p)
		if err == nil || !IsTransient(err) {
			return
		}
		if n > 0 {
			return n, nil
		}
	}
}

// RetryWriter returns an io.Writer that resumes writes interrupted by
// EINTR or EAGAIN until all bytes are written or a real error occurs.
func RetryWriter(w io.Writer) io.Writer {
	if _, ok := w.(retryWriter); ok {
		return w
	}
	return retryWriter{w}
}

func (rw retryWriter) Write(p []byte) (n int, err error) {
	for {
		var m int
		m, err = rw.w.Write(p[n:])
		n += m
		if err == nil || !IsTransient(err) {
			return
		}
		if n == len(p) {
			return n, nil
		}
	}
}
