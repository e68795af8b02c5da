package stagecatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

func TestPIIMaskingStage_MasksConfiguredPatterns(t *testing.T) {
	// Arrange
	s := NewPIIMaskingStage()
	chunk := domain.NewFileChunk(0, 0, []byte("contact jane@example.com or 555-123-4567"), true)
	ctx := domain.NewProcessingContext("in", "out", 0, domain.SecurityLevelStandard)

	// Act
	result, err := s.ProcessChunk(chunk, stage.Configuration{
		Operation:  stage.Forward,
		Parameters: map[string]string{"patterns": "email,phone"},
	}, ctx)

	// Assert
	require.NoError(t, err)
	assert.NotContains(t, string(result.Data), "jane@example.com")
	assert.NotContains(t, string(result.Data), "555-123-4567")
	matched, ok := ctx.Metadata("pii_matches_masked")
	assert.True(t, ok)
	assert.NotEqual(t, "0", matched)
}

func TestPIIMaskingStage_PreservesFormatWhenRequested(t *testing.T) {
	s := NewPIIMaskingStage()
	chunk := domain.NewFileChunk(0, 0, []byte("ssn 123-45-6789"), true)

	result, err := s.ProcessChunk(chunk, stage.Configuration{
		Operation:  stage.Forward,
		Parameters: map[string]string{"patterns": "ssn", "preserve_format": "true", "mask_char": "X"},
	}, nil)

	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "XXX-XX-XXXX")
}

func TestPIIMaskingStage_ReverseIsRejected(t *testing.T) {
	s := NewPIIMaskingStage()
	chunk := domain.NewFileChunk(0, 0, []byte("data"), true)

	_, err := s.ProcessChunk(chunk, stage.Configuration{Operation: stage.Reverse}, nil)

	require.Error(t, err)
	var notReversible *stage.NotReversibleError
	assert.ErrorAs(t, err, &notReversible)
	assert.False(t, s.IsReversible())
}
