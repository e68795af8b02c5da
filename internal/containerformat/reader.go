package containerformat

import (
	"fmt"
	"io"
)

// Reader opens an .adapipe container for Reverse processing: read the
// footer, seek to the manifest, verify its checksum, then iterate chunk
// records by sequence number.
type Reader struct {
	r        io.ReaderAt
	size     int64
	Manifest Manifest
}

// Open reads the footer and manifest from an already-open ReaderAt of
// total length size. Reading begins at end-of-file.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	if size < int64(FooterSize) {
		return nil, fmt.Errorf("containerformat: file too short for footer: %w", ErrInvalidContainer)
	}

	footerBuf := make([]byte, FooterSize)
	if _, err := r.ReadAt(footerBuf, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("containerformat: read footer: %w", err)
	}
	manifestOffset, err := DecodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}
	if int64(manifestOffset) >= size-int64(FooterSize) {
		return nil, fmt.Errorf("containerformat: manifest offset %d out of range: %w", manifestOffset, ErrInvalidContainer)
	}

	lenBuf := make([]byte, ManifestLengthPrefixSize)
	if _, err := r.ReadAt(lenBuf, int64(manifestOffset)); err != nil {
		return nil, fmt.Errorf("containerformat: read manifest length: %w", err)
	}
	bodyLen, err := DecodeManifestLength(lenBuf)
	if err != nil {
		return nil, err
	}

	bodyStart := int64(manifestOffset) + ManifestLengthPrefixSize
	if bodyStart+int64(bodyLen) > size-int64(FooterSize) {
		return nil, fmt.Errorf("containerformat: manifest body overruns footer: %w", ErrCorruptContainer)
	}

	body := make([]byte, bodyLen)
	if _, err := r.ReadAt(body, bodyStart); err != nil {
		return nil, fmt.Errorf("containerformat: read manifest body: %w", err)
	}

	manifest, err := UnmarshalManifest(body)
	if err != nil {
		return nil, err
	}
	if err := CheckVersion(manifest.Version); err != nil {
		return nil, err
	}

	return &Reader{r: r, size: size, Manifest: manifest}, nil
}

// ReadChunkRecord reads and decodes the record for sequence number seq
// using the manifest's record_size as the fixed stride.
func (rd *Reader) ReadChunkRecord(seq uint64) (nonce [NonceSize]byte, payload []byte, err error) {
	if seq >= rd.Manifest.ChunkCount {
		return nonce, nil, fmt.Errorf("containerformat: sequence %d out of range (chunk_count=%d)", seq, rd.Manifest.ChunkCount)
	}
	recordSize := rd.Manifest.RecordSize
	start := seq * uint64(recordSize)

	buf := make([]byte, recordSize)
	if _, err := rd.r.ReadAt(buf, int64(start)); err != nil {
		return nonce, nil, fmt.Errorf("containerformat: read chunk record %d: %w", seq, err)
	}
	return DecodeChunkRecord(buf, recordSize)
}
