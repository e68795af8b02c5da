//go:build darwin || linux

package fileio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps f read-only when it is non-empty and larger than maxSize
// (0 means any non-empty file). Split by build tag for platform-specific
// golang.org/x/sys/unix calls.
func mmapFile(f *os.File, maxSize int64) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("fileio: stat for mmap: %w", err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("fileio: cannot mmap empty file")
	}
	if maxSize > 0 && st.Size() <= maxSize {
		return nil, fmt.Errorf("fileio: file size %d does not exceed max_mmap_size %d", st.Size(), maxSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("fileio: mmap: %w", err)
	}
	return data, nil
}

func munmapFile(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("fileio: munmap: %w", err)
	}
	return nil
}
