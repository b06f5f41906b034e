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
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/exascience/elzip/codec"
	"github.com/exascience/elzip/internal"
	"github.com/exascience/elzip/utils"
)

// ProgramMessage is the first line printed when the elzip binary is
// called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// commonHelp lists the flags that all commands accept.
const commonHelp = "[--nr-of-threads nr]\n" +
	"[--buffers nr]\n" +
	"[--config file.toml]\n" +
	"[--log-level level]\n" +
	"[--log-path path]\n" +
	"[--timed]\n" +
	"[--profile file]\n"

func getFilename(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "--") {
			internal.Log.Error().Msg("Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			os.Exit(1)
		}
	}
	return s
}

// findConfig returns the value of the --config flag, so that the
// config file can be loaded before the other flags override it.
func findConfig(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// session holds the state of one command invocation.
type session struct {
	cfg     utils.Config
	profile string
	runID   uuid.UUID
	logger  zerolog.Logger
}

// newSession loads the config file named on the command line, if any,
// and binds the common flags to the resulting settings.
func newSession(flags *flag.FlagSet, args []string) (*session, error) {
	cfg, err := utils.DefaultConfig()
	if err != nil {
		return nil, err
	}
	if configFile := findConfig(args); configFile != "" {
		if err := utils.LoadConfig(configFile, &cfg); err != nil {
			return nil, err
		}
	}
	s := &session{cfg: cfg, runID: uuid.New()}
	flags.String("config", "", "TOML file with default settings")
	flags.IntVar(&s.cfg.Threads, "nr-of-threads", s.cfg.Threads, "number of worker threads")
	flags.IntVar(&s.cfg.Buffers, "buffers", s.cfg.Buffers, "number of block buffers per stream")
	flags.StringVar(&s.cfg.LogLevel, "log-level", s.cfg.LogLevel, "log level")
	flags.StringVar(&s.cfg.LogPath, "log-path", s.cfg.LogPath, "write log files to the given path")
	flags.BoolVar(&s.cfg.Timed, "timed", s.cfg.Timed, "log the elapsed time")
	flags.StringVar(&s.profile, "profile", "", "write a CPU profile to the given file")
	return s, nil
}

// addCompressionFlags binds the flags of commands that write
// compressed output.
func (s *session) addCompressionFlags(flags *flag.FlagSet) {
	flags.StringVar(&s.cfg.Format, "format", s.cfg.Format, "output format: bgzf or framed")
	flags.StringVar(&s.cfg.Codec, "codec", s.cfg.Codec, "codec of framed output: "+strings.Join(codec.Names(), ", "))
	flags.IntVar(&s.cfg.Window, "window", s.cfg.Window, "uncompressed bytes per block")
	flags.BoolVar(&s.cfg.Index, "index", s.cfg.Index, "also write a .gzi index")
	flags.Func("compression-level", "compression level", func(value string) error {
		level, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.cfg.Level = &level
		return nil
	})
}

func parseFlags(flags *flag.FlagSet, args []string, help string) {
	flags.SetOutput(io.Discard)
	if err := flags.Parse(args); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

// start applies the logging settings and prints the command line.
func (s *session) start(command string) error {
	if err := internal.SetLogLevel(s.cfg.LogLevel); err != nil {
		return err
	}
	if s.cfg.LogPath != "" {
		if err := setLogOutput(s.cfg.LogPath); err != nil {
			return err
		}
	}
	s.logger = internal.Log.With().Str("run", s.runID.String()).Logger()
	s.logger.Info().Msgf("Executing command:\n %v", command)
	return nil
}

func (s *session) checkThreads(help string) {
	if s.cfg.Threads < 0 {
		internal.Log.Error().Int("nr-of-threads", s.cfg.Threads).Msg("Error: Invalid nr-of-threads.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

// commandLine reconstructs the effective command line of a session.
func (s *session) commandLine(name string, files ...string) *strings.Builder {
	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " ", name)
	for _, file := range files {
		fmt.Fprint(&command, " ", file)
	}
	if s.cfg.Threads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", s.cfg.Threads)
	}
	if s.cfg.Buffers > 0 {
		fmt.Fprint(&command, " --buffers ", s.cfg.Buffers)
	}
	return &command
}

func logCheckFile(parameter, format string, v ...interface{}) {
	if parameter != "" {
		internal.Log.Error().Msgf(format+" for command line parameter %v.", append(v, parameter)...)
	} else {
		internal.Log.Error().Msgf(format+".", v...)
	}
}

func checkExist(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	} else if os.IsNotExist(err) {
		logCheckFile(parameter, "Error: File %v does not exist", filename)
		return false
	} else if os.IsPermission(err) {
		logCheckFile(parameter, "Error: No permission to read file %v", filename)
		return false
	} else {
		logCheckFile(parameter, "Error %v when trying to access file %v", err, filename)
		return false
	}
}

func checkCreate(parameter, filename string) bool {
	if len(filename) == 0 {
		logCheckFile(parameter, "Error: Missing filename")
		return false
	}
	if filename[0] == '-' {
		logCheckFile(parameter, "Error: Missing filename before %v", filename)
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		// Assume that the file has been written by previous elzip runs, and can be overwritten.
		return true
	}
	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err == nil {
		err = os.WriteFile(filename, nil, 0666)
	}
	if err != nil {
		if os.IsPermission(err) {
			logCheckFile(parameter, "Error: No permission to create file %v", filename)
		} else {
			logCheckFile(parameter, "Error %v when trying to create file %v", err, filename)
		}
		return false
	}
	_ = os.Remove(filename)
	return true
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/elzip/elzip-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

// setLogOutput duplicates the log and everything written to stderr to
// a new log file under path.
func setLogOutput(path string) error {
	fullPath := filepath.Join(path, createLogFilename())
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return fmt.Errorf("%v in setLogOutput", err)
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return fmt.Errorf("%v in setLogOutput", err)
	}

	internal.SetLogOutput(io.MultiWriter(f, ferr))
	internal.Log.Info().Str("path", fullPath).Msg("Created log file")
	internal.Log.Info().Strs("args", os.Args).Msg("Command line")
	return nil
}

func (s *session) timedRun(msg string, f func() error) (err error) {
	if s.profile != "" {
		file, ferr := os.Create(s.profile)
		if ferr != nil {
			return ferr
		}
		defer internal.Close(file, &err)
		if err = pprof.StartCPUProfile(file); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}
	if s.cfg.Timed {
		s.logger.Info().Msg(msg)
		start := time.Now()
		defer func() {
			s.logger.Info().Dur("elapsed", time.Since(start)).Msg("Elapsed time")
		}()
	}
	return f()
}
