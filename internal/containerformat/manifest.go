package containerformat

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ManifestMagic identifies a valid manifest record.
const ManifestMagic = "ADPEMANI"

// FooterMagic identifies a valid footer.
const FooterMagic = "ADPE"

// CurrentMajorVersion / CurrentMinorVersion are the format versions this
// codec writes. A reader MAY refuse a higher major version, MUST accept an
// equal major version with added optional fields, and MUST ignore unknown
// step parameters.
const (
	CurrentMajorVersion = 1
	CurrentMinorVersion = 0
)

// Version is the manifest's format version pair.
type Version struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

// StepDescriptor records one pipeline stage's identity and configuration as
// it was applied, so Reverse can reconstruct the same stage graph from the
// container alone.
type StepDescriptor struct {
	StageType  string            `json:"stage_type"`
	Algorithm  string            `json:"algorithm"`
	Parameters map[string]string `json:"parameters"`
	Order      uint32            `json:"order"`
}

// Manifest is the structured trailing record describing how a container
// was built and how to reverse it. Serialized as length-prefixed JSON: a
// binary schema library (protobuf/flatbuffers/msgpack) would be overkill
// for a self-describing trailer, so stdlib encoding/json is used directly
// (documented in DESIGN.md as a deliberate stdlib choice, not an oversight).
type Manifest struct {
	Magic                    string            `json:"magic"`
	Version                  Version           `json:"version"`
	OriginalSize             uint64            `json:"original_size"`
	OriginalChecksumAlgorithm string           `json:"original_checksum_algorithm"`
	OriginalChecksum         []byte            `json:"original_checksum"`
	RecordSize               uint32            `json:"record_size"`
	OriginalChunkSize        uint32            `json:"original_chunk_size"`
	ChunkCount               uint64            `json:"chunk_count"`
	CreatedAt                string            `json:"created_at"`
	Steps                    []StepDescriptor  `json:"steps"`
	ManifestChecksumAlgorithm string           `json:"manifest_checksum_algorithm"`
	ManifestChecksum         []byte            `json:"manifest_checksum,omitempty"`
}

// NewManifest builds a manifest with the current format version and an
// RFC3339 creation timestamp, leaving ManifestChecksum to be filled by
// Marshal.
func NewManifest(originalSize uint64, originalChecksum [32]byte, recordSize uint32, chunkCount uint64, steps []StepDescriptor, createdAt time.Time, originalChunkSize uint32) Manifest {
	return Manifest{
		Magic:                     ManifestMagic,
		Version:                   Version{Major: CurrentMajorVersion, Minor: CurrentMinorVersion},
		OriginalSize:              originalSize,
		OriginalChecksumAlgorithm: "sha256",
		OriginalChecksum:          originalChecksum[:],
		RecordSize:                recordSize,
		OriginalChunkSize:         originalChunkSize,
		ChunkCount:                chunkCount,
		CreatedAt:                 createdAt.UTC().Format(time.RFC3339),
		Steps:                     steps,
		ManifestChecksumAlgorithm: "sha256",
	}
}

// Marshal serializes the manifest to bytes and computes ManifestChecksum
// over every prior byte (i.e. the manifest with the checksum field
// cleared).
func (m Manifest) Marshal() ([]byte, error) {
	unsummed := m
	unsummed.ManifestChecksum = nil
	body, err := json.Marshal(unsummed)
	if err != nil {
		return nil, fmt.Errorf("containerformat: marshal manifest: %w", err)
	}
	sum := sha256.Sum256(body)
	unsummed.ManifestChecksum = sum[:]
	final, err := json.Marshal(unsummed)
	if err != nil {
		return nil, fmt.Errorf("containerformat: marshal manifest with checksum: %w", err)
	}
	return final, nil
}

// UnmarshalManifest parses and validates a manifest's checksum and magic.
// Version compatibility is checked separately by the caller (Reader), since
// "refuse a higher major version" is policy, not a parse error.
func UnmarshalManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("containerformat: unmarshal manifest: %w: %w", err, ErrCorruptContainer)
	}
	if m.Magic != ManifestMagic {
		return Manifest{}, fmt.Errorf("containerformat: bad manifest magic %q: %w", m.Magic, ErrCorruptContainer)
	}

	claimed := m.ManifestChecksum
	unsummed := m
	unsummed.ManifestChecksum = nil
	body, err := json.Marshal(unsummed)
	if err != nil {
		return Manifest{}, fmt.Errorf("containerformat: re-marshal manifest for checksum: %w", err)
	}
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], claimed) {
		return Manifest{}, fmt.Errorf("containerformat: manifest checksum mismatch: %w", ErrCorruptContainer)
	}

	return m, nil
}

// CheckVersion enforces the compatibility rule: refuse a strictly higher
// major version than this codec supports.
func CheckVersion(v Version) error {
	if v.Major > CurrentMajorVersion {
		return fmt.Errorf("containerformat: manifest major version %d newer than supported %d: %w", v.Major, CurrentMajorVersion, ErrUnsupportedVersion)
	}
	return nil
}
