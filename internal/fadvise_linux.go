//go:build linux

package internal

import (
	"os"

	"golang.org/x/sys/unix"
)

// FadviseSequential hints to the kernel that f will be read sequentially
// from start to end. Errors are ignored.
func FadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
