package stagecatalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

func TestTeeStage_DumpsAndPassesThrough(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.bin")
	s := NewTeeStage()
	cfg := stage.Configuration{Parameters: map[string]string{"output_path": path}}

	// Act
	first, err := s.ProcessChunk(domain.NewFileChunk(0, 0, []byte("hello "), false), cfg, nil)
	require.NoError(t, err)
	second, err := s.ProcessChunk(domain.NewFileChunk(1, 6, []byte("world"), true), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Assert
	assert.Equal(t, []byte("hello "), first.Data)
	assert.Equal(t, []byte("world"), second.Data)
	dumped, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(dumped))
}

func TestTeeStage_MissingOutputPath(t *testing.T) {
	s := NewTeeStage()
	_, err := s.ProcessChunk(domain.NewFileChunk(0, 0, []byte("x"), true), stage.Configuration{}, nil)
	assert.Error(t, err)
}
