package stagecatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

func TestCompressionStage_RoundTrips(t *testing.T) {
	for _, algorithm := range []string{"zstd", "gzip", "lz4", "brotli"} {
		t.Run(algorithm, func(t *testing.T) {
			// Arrange
			s := NewCompressionStage()
			payload := []byte(repeatString("the quick brown fox jumps over the lazy dog ", 40))
			chunk := domain.NewFileChunk(0, 0, payload, true)
			ctx := domain.NewProcessingContext("in", "out", uint64(len(payload)), domain.SecurityLevelStandard)

			// Act
			compressed, err := s.ProcessChunk(chunk, stage.Configuration{
				Algorithm: algorithm,
				Operation: stage.Forward,
			}, ctx)
			require.NoError(t, err)

			restored, err := s.ProcessChunk(compressed, stage.Configuration{
				Algorithm: algorithm,
				Operation: stage.Reverse,
			}, ctx)
			require.NoError(t, err)

			// Assert
			assert.Equal(t, payload, restored.Data)
			ratio, ok := ctx.Metadata("compression_ratio")
			assert.True(t, ok)
			assert.NotEmpty(t, ratio)
		})
	}
}

func TestCompressionStage_UnsupportedAlgorithm(t *testing.T) {
	s := NewCompressionStage()
	chunk := domain.NewFileChunk(0, 0, []byte("data"), true)

	_, err := s.ProcessChunk(chunk, stage.Configuration{Algorithm: "lzma", Operation: stage.Forward}, nil)

	assert.Error(t, err)
}

func repeatString(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
