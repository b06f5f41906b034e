//go:build !linux

package internal

import "os"

// FadviseSequential is a no-op outside Linux.
func FadviseSequential(f *os.File) {}
