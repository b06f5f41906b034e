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

	"github.com/rs/zerolog"
)

// DefaultLogLevel is the log level until SetLogLevel is called.
const DefaultLogLevel = zerolog.InfoLevel

func init() {
	zerolog.SetGlobalLevel(DefaultLogLevel)
}

// Log is the process-wide logger. Packages derive component loggers
// from it with Log.With().Str("component", ...).Logger().
var Log = NewLogger(os.Stderr)

// NewLogger returns a console logger writing to w.
func NewLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}).
		With().Timestamp().Logger()
}

// SetLogOutput redirects Log to w. It is meant to be called once,
// before any pipeline is started.
func SetLogOutput(w io.Writer) {
	Log = NewLogger(w)
}

// SetLogLevel sets the global log level from its textual name
// (trace, debug, info, warn, error, fatal, panic, disabled).
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%v in SetLogLevel", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Panicf logs a programmer error and panics with the same message.
// It is used for protocol violations that must fail fast.
func Panicf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	Log.Error().Msg(msg)
	panic(msg)
}
