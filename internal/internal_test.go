package internal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// flakyReader interrupts every other read.
type flakyReader struct {
	r     io.Reader
	calls int
}

func (f *flakyReader) Read(p []byte) (int, error) {
	f.calls++
	if f.calls%2 == 1 {
		return 0, unix.EINTR
	}
	return f.r.Read(p[:min(len(p), 3)])
}

type flakyWriter struct {
	bytes.Buffer
	calls int
}

func (f *flakyWriter) Write(p []byte) (int, error) {
	f.calls++
	if f.calls%2 == 1 {
		n, _ := f.Buffer.Write(p[:len(p)/2])
		return n, unix.EAGAIN
	}
	return f.Buffer.Write(p)
}

func TestRetry(t *testing.T) {
	data, err := io.ReadAll(RetryReader(&flakyReader{r: strings.NewReader("transient errors never surface")}))
	require.NoError(t, err)
	assert.Equal(t, "transient errors never surface", string(data))

	var w flakyWriter
	n, err := RetryWriter(&w).Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", w.String())

	assert.True(t, IsTransient(unix.EINTR))
	assert.False(t, IsTransient(io.ErrUnexpectedEOF))
	errBroken := errors.New("broken")
	_, err = RetryReader(&failing{errBroken}).Read(make([]byte, 1))
	assert.Equal(t, errBroken, err)
}

type failing struct{ err error }

func (f *failing) Read([]byte) (int, error) { return 0, f.err }

func TestOutputFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "sub", "out.gz")
	f, err := CreateOutput(filename, uuid.New())
	require.NoError(t, err)
	_, err = f.WriteString("content")
	require.NoError(t, err)
	_, err = os.Stat(filename)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, f.Commit())
	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))

	f, err = CreateOutput(filename, uuid.New())
	require.NoError(t, err)
	_, err = f.WriteString("discarded")
	require.NoError(t, err)
	f.Abort()
	content, err = os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))
	names, err := Directory(filepath.Dir(filename))
	require.NoError(t, err)
	assert.Equal(t, []string{"out.gz"}, names)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.gz", "a.gz", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}
	other := filepath.Join(dir, "c.txt")
	inputs, err := ExpandInputs([]string{dir, other}, ".gz")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.gz"), filepath.Join(dir, "b.gz"), other}, inputs)
	_, err = ExpandInputs([]string{filepath.Join(dir, "missing")}, ".gz")
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	assert.Equal(t, DefaultLogLevel, zerolog.GlobalLevel())
	var quiet bytes.Buffer
	quietLog := NewLogger(&quiet)
	quietLog.Debug().Msg("thread pool started")
	assert.Empty(t, quiet.String())

	assert.NoError(t, SetLogLevel("debug"))
	assert.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("info"))
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.Info().Str("file", "x.gz").Msg("indexed")
	assert.Contains(t, buf.String(), "indexed")
	assert.Contains(t, buf.String(), "file=x.gz")
	assert.Panics(t, func() { Panicf("bad %v", 1) })
}
