//go:build !(darwin || linux)

package fileio

import (
	"errors"
	"os"
)

// mmapFile has no portable implementation outside darwin/linux; callers
// fall back to sequential reads when this returns an error (see
// StreamFileChunks).
func mmapFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, errors.New("fileio: memory mapping not supported on this platform")
}

func munmapFile(_ []byte) error { return nil }
