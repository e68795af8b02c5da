package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
)

func TestStreamFileChunks_ProducesDenseSequenceAndOffsets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	content := make([]byte, 2*int(domain.MinChunkSize)+2)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	port := NewPort(nil, 0)
	it, closeFn, err := port.StreamFileChunks(path, ReadOptions{ChunkSize: domain.MinChunkSize})
	require.NoError(t, err)
	defer closeFn()

	var chunks []domain.FileChunk
	for {
		c, ok, err := it()
		require.NoError(t, err)
		if !ok {
			break
		}
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 3)
	assert.EqualValues(t, 0, chunks[0].SequenceNumber)
	assert.EqualValues(t, 0, chunks[0].Offset)
	assert.EqualValues(t, 1, chunks[1].SequenceNumber)
	assert.EqualValues(t, domain.MinChunkSize, chunks[1].Offset)
	assert.EqualValues(t, 2, chunks[2].SequenceNumber)
	assert.EqualValues(t, 2*domain.MinChunkSize, chunks[2].Offset)
	assert.True(t, chunks[2].IsFinal)
	assert.False(t, chunks[0].IsFinal)
	assert.Len(t, chunks[2].Data, 2)
}

func TestStreamFileChunks_EmptyFileYieldsOneEmptyFinalChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	port := NewPort(nil, 0)
	it, closeFn, err := port.StreamFileChunks(path, ReadOptions{ChunkSize: 4})
	require.NoError(t, err)
	defer closeFn()

	chunk, ok, err := it()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, chunk.SequenceNumber)
	assert.Empty(t, chunk.Data)
	assert.True(t, chunk.IsFinal)

	_, ok, err = it()
	require.NoError(t, err)
	assert.False(t, ok, "empty file must yield exactly one chunk")
}

func TestWriteChunkToFile_PositionalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	port := NewPort(nil, 0)

	c0 := domain.NewFileChunk(0, 0, []byte("AAAA"), false)
	c1 := domain.NewFileChunk(1, 4, []byte("BB"), true)

	require.NoError(t, port.WriteChunkToFile(path, c1, WriteOptions{}, true))
	require.NoError(t, port.WriteChunkToFile(path, c0, WriteOptions{}, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAABB", string(data))
}

func TestCalculateFileChecksum_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("Hello, World!"), 0o644))

	port := NewPort(nil, 0)
	sum1, err := port.CalculateFileChecksum(path)
	require.NoError(t, err)
	sum2, err := port.CalculateFileChecksum(path)
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2)
}

func TestSetBandwidthLimit_StillProducesAllChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bin")
	content := make([]byte, 10)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	port := NewPort(nil, 0)
	// Generous limit: the test only asserts throttling doesn't corrupt or
	// drop chunks, not wall-clock pacing.
	port.SetBandwidthLimit(1 << 20)

	it, closeFn, err := port.StreamFileChunks(path, ReadOptions{ChunkSize: 4})
	require.NoError(t, err)
	defer closeFn()

	var total int
	for {
		c, ok, err := it()
		require.NoError(t, err)
		if !ok {
			break
		}
		total += len(c.Data)
	}
	assert.Equal(t, len(content), total)
}

func TestSetBandwidthLimit_ZeroDisablesThrottling(t *testing.T) {
	port := NewPort(nil, 0)
	port.SetBandwidthLimit(100)
	require.NotNil(t, port.limiter)

	port.SetBandwidthLimit(0)
	assert.Nil(t, port.limiter)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	port := NewPort(nil, 0)

	assert.False(t, port.FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.True(t, port.FileExists(path))
}
