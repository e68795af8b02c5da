package containerformat

import (
	"encoding/binary"
	"fmt"
)

// FooterSize is the fixed trailing footer: manifest_offset (u64 LE) plus
// the 4-byte ASCII magic "ADPE".
const FooterSize = 8 + 4

// EncodeFooter serializes the footer given the byte offset at which the
// manifest record begins.
func EncodeFooter(manifestOffset uint64) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(buf[:8], manifestOffset)
	copy(buf[8:], FooterMagic)
	return buf
}

// DecodeFooter parses a FooterSize-byte trailer. A short or malformed
// footer is ErrInvalidContainer.
func DecodeFooter(data []byte) (manifestOffset uint64, err error) {
	if len(data) != FooterSize {
		return 0, fmt.Errorf("containerformat: footer is %d bytes, want %d: %w", len(data), FooterSize, ErrInvalidContainer)
	}
	if string(data[8:]) != FooterMagic {
		return 0, fmt.Errorf("containerformat: bad footer magic %q: %w", data[8:], ErrInvalidContainer)
	}
	return binary.LittleEndian.Uint64(data[:8]), nil
}

// ManifestLengthPrefixSize is the width of the length prefix preceding the
// manifest's JSON body on disk.
const ManifestLengthPrefixSize = 8

// EncodeManifestRecord wraps a marshaled manifest body with its
// little-endian u64 length prefix.
func EncodeManifestRecord(body []byte) []byte {
	buf := make([]byte, ManifestLengthPrefixSize+len(body))
	binary.LittleEndian.PutUint64(buf[:ManifestLengthPrefixSize], uint64(len(body)))
	copy(buf[ManifestLengthPrefixSize:], body)
	return buf
}

// DecodeManifestLength reads the length prefix given the first
// ManifestLengthPrefixSize bytes at the manifest offset.
func DecodeManifestLength(prefix []byte) (uint64, error) {
	if len(prefix) != ManifestLengthPrefixSize {
		return 0, fmt.Errorf("containerformat: manifest length prefix is %d bytes, want %d: %w", len(prefix), ManifestLengthPrefixSize, ErrInvalidContainer)
	}
	return binary.LittleEndian.Uint64(prefix), nil
}
