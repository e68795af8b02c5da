package stagecatalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/zeebo/blake3"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// ChecksumStage implements the Checksum entry of the stage catalogue. It
// attaches a per-chunk digest and records it in run metadata; the
// auto-inserted input_checksum/output_checksum bookends (internal/pipeline)
// use it with algorithm "sha256". The whole-file digests carried in the
// manifest are computed separately by the scheduler via
// fileio.Port.CalculateFileChecksum. Unlike compression and encryption it never changes the
// payload, so Forward and Reverse behave identically: there is nothing to
// undo.
//
// sha256 covers the default digest; github.com/zeebo/blake3 backs the
// "blake3" algorithm as a faster alternative.
type ChecksumStage struct{}

// NewChecksumStage constructs the checksum stage implementation.
func NewChecksumStage() *ChecksumStage { return &ChecksumStage{} }

func (s *ChecksumStage) Position() stage.StagePosition { return stage.Any }
func (s *ChecksumStage) IsReversible() bool             { return true }
func (s *ChecksumStage) StageType() stage.StageType     { return stage.StageTypeChecksum }

func (s *ChecksumStage) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	algorithm := cfg.ParamOrDefault("algorithm", "sha256")

	digestHex, sum32, err := digest(algorithm, chunk.Data)
	if err != nil {
		return domain.FileChunk{}, fmt.Errorf("checksum: %w", err)
	}

	if ctx != nil {
		ctx.SetMetadata(metadataKey(cfg), digestHex)
	}

	if sum32 != nil {
		return chunk.WithChecksum(*sum32), nil
	}
	return chunk, nil
}

// metadataKey distinguishes the input vs output bookend in run metadata so
// both survive without overwriting each other. Each key holds the digest of
// the most recent chunk that set it.
func metadataKey(cfg stage.Configuration) string {
	if name, ok := cfg.Param("bookend"); ok {
		return name + "_checksum"
	}
	return "chunk_checksum"
}

func digest(algorithm string, data []byte) (hexDigest string, sum32 *[32]byte, err error) {
	switch algorithm {
	case "sha256":
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), &sum, nil

	case "blake3":
		sum := blake3.Sum256(data)
		var out [32]byte
		copy(out[:], sum[:])
		return hex.EncodeToString(sum[:]), &out, nil

	case "crc32":
		sum := crc32.ChecksumIEEE(data)
		var out [32]byte
		out[0] = byte(sum)
		out[1] = byte(sum >> 8)
		out[2] = byte(sum >> 16)
		out[3] = byte(sum >> 24)
		return fmt.Sprintf("%08x", sum), &out, nil

	default:
		return "", nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}
