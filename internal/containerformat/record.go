// Package containerformat implements the .adapipe binary container codec
// (C4): per-chunk framing, the trailing manifest, and the footer that makes
// the file self-describing.
//
// Framing follows a "fixed magic + small binary header precedes a variable
// payload, trailer carries a whole-stream checksum" idiom, with SHA-256
// used for the manifest checksum.
package containerformat

import (
	"encoding/binary"
	"fmt"
)

// NonceSize is the fixed nonce field width in a chunk record. The
// container-level nonce is a framing artifact reserved for future use by
// the codec itself; encryption stages manage their own AEAD nonces inside
// the payload they hand back, so this field is zero-filled by the codec
// today. Keeping it in the record format now avoids a breaking layout
// change if a future version needs per-record entropy at the framing
// layer.
const NonceSize = 12

// LengthFieldSize is the width of the little-endian payload-length prefix.
const LengthFieldSize = 4

// RecordHeaderSize is nonce + length, the fixed portion of every record
// before the (possibly padded) payload.
const RecordHeaderSize = NonceSize + LengthFieldSize

// EncodeChunkRecord serializes payload into a fixed-stride record of
// exactly recordSize bytes: 12-byte nonce, 4-byte little-endian length,
// payload, zero-padding to recordSize. It is an error for payload to be
// larger than recordSize can hold.
func EncodeChunkRecord(nonce [NonceSize]byte, payload []byte, recordSize uint32) ([]byte, error) {
	if uint32(len(payload))+RecordHeaderSize > recordSize {
		return nil, fmt.Errorf("containerformat: payload of %d bytes exceeds record_size %d: %w", len(payload), recordSize, ErrCorruptContainer)
	}

	buf := make([]byte, recordSize)
	copy(buf[:NonceSize], nonce[:])
	binary.LittleEndian.PutUint32(buf[NonceSize:NonceSize+LengthFieldSize], uint32(len(payload)))
	copy(buf[RecordHeaderSize:], payload)
	return buf, nil
}

// DecodeChunkRecord parses a fixed-stride record back into its nonce and
// payload. record must be exactly recordSize bytes.
func DecodeChunkRecord(record []byte, recordSize uint32) (nonce [NonceSize]byte, payload []byte, err error) {
	if uint32(len(record)) != recordSize {
		return nonce, nil, fmt.Errorf("containerformat: record length %d does not match record_size %d: %w", len(record), recordSize, ErrCorruptContainer)
	}
	copy(nonce[:], record[:NonceSize])
	length := binary.LittleEndian.Uint32(record[NonceSize : NonceSize+LengthFieldSize])
	if length > recordSize-RecordHeaderSize {
		return nonce, nil, fmt.Errorf("containerformat: declared length %d exceeds record_size %d: %w", length, recordSize, ErrCorruptContainer)
	}
	payload = make([]byte, length)
	copy(payload, record[RecordHeaderSize:RecordHeaderSize+length])
	return nonce, payload, nil
}
