//go:build unix

package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapShared(f *os.File, size int, opt Options) ([]byte, error) {
	flags := unix.MAP_SHARED
	if opt.Has(Prefault) {
		flags |= mapPopulate
	}
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	if opt.Has(RandomAccess) {
		// ENOSYS only means the kernel ignores the hint.
		if err := unix.Madvise(b, unix.MADV_RANDOM); err != nil && err != unix.ENOSYS {
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("madvise(MADV_RANDOM): %w", err)
		}
	}
	return b, nil
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

// flush writes dirty pages of the mapping back to the file and waits for the
// write to complete.
func flush(_ *os.File, b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}
