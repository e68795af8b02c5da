package stagecatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

func TestChecksumStage_AttachesDigestAndMetadata(t *testing.T) {
	for _, algorithm := range []string{"sha256", "blake3", "crc32"} {
		t.Run(algorithm, func(t *testing.T) {
			// Arrange
			s := NewChecksumStage()
			ctx := domain.NewProcessingContext("in", "out", 4, domain.SecurityLevelStandard)
			chunk := domain.NewFileChunk(0, 0, []byte("data"), true)

			// Act
			result, err := s.ProcessChunk(chunk, stage.Configuration{
				Algorithm:  algorithm,
				Parameters: map[string]string{"algorithm": algorithm, "bookend": "input"},
			}, ctx)

			// Assert
			require.NoError(t, err)
			require.NotNil(t, result.Checksum)
			digest, ok := ctx.Metadata("input_checksum")
			assert.True(t, ok)
			assert.NotEmpty(t, digest)
		})
	}
}

func TestChecksumStage_Deterministic(t *testing.T) {
	s := NewChecksumStage()
	chunk := domain.NewFileChunk(0, 0, []byte("deterministic"), true)
	cfg := stage.Configuration{Parameters: map[string]string{"algorithm": "sha256"}}

	first, err := s.ProcessChunk(chunk, cfg, nil)
	require.NoError(t, err)
	second, err := s.ProcessChunk(chunk, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, *first.Checksum, *second.Checksum)
}
