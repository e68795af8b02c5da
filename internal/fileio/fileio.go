// Package fileio implements the file I/O port (C6): chunked sequential
// reads, optional memory-mapped reads for large inputs, positional chunk
// writes, and whole-file checksums.
//
// Chunk writes go in place at the chunk's offset via WriteAt, with an
// optional fsync; reads use a fixed-size buffered read loop with zap debug
// logging per chunk.
package fileio

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/adapipe/internal/domain"
)

// ReadOptions configures a read operation.
type ReadOptions struct {
	ChunkSize          domain.ChunkSize
	StartOffset        uint64
	MaxBytes           uint64 // 0 means unbounded
	CalculateChecksums bool
	UseMemoryMapping   bool
}

// WriteOptions configures a write operation.
type WriteOptions struct {
	Append             bool
	CreateDirs         bool
	Permissions        os.FileMode
	Sync               bool
	CalculateChecksums bool
}

// FileInfo mirrors the subset of os.FileInfo the port promises callers.
type FileInfo struct {
	Path    string
	Size    int64
	Mode    os.FileMode
	IsDir   bool
}

// Port is the concrete file I/O capability, parameterized by a *zap.Logger
// like every other driver in this module.
type Port struct {
	logger      *zap.Logger
	maxMmapSize int64
	limiter     *rate.Limiter
}

// NewPort constructs a file I/O port. maxMmapSize is the threshold above
// which StreamFileChunks will memory-map the input when the caller opts in
// via ReadOptions.UseMemoryMapping.
func NewPort(logger *zap.Logger, maxMmapSize int64) *Port {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Port{logger: logger, maxMmapSize: maxMmapSize}
}

// SetBandwidthLimit caps this port's aggregate read and write throughput at
// bytesPerSecond using a golang.org/x/time/rate token-bucket limiter whose
// burst equals one second of throughput. A non-positive value disables
// throttling, which is the default.
func (p *Port) SetBandwidthLimit(bytesPerSecond int) {
	if bytesPerSecond <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
}

// waitBandwidth blocks until n bytes' worth of tokens are available, if a
// limit has been configured. It is a no-op when no limiter is set.
func (p *Port) waitBandwidth(n int) error {
	if p.limiter == nil || n <= 0 {
		return nil
	}
	if err := p.limiter.WaitN(context.Background(), n); err != nil {
		return fmt.Errorf("fileio: bandwidth wait: %w", err)
	}
	return nil
}

// GetFileInfo stats path.
func (p *Port) GetFileInfo(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("fileio: stat %s: %w", path, err)
	}
	return FileInfo{Path: path, Size: st.Size(), Mode: st.Mode(), IsDir: st.IsDir()}, nil
}

// FileExists reports whether path exists.
func (p *Port) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDir creates path's parent directories if missing.
func (p *Port) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fileio: mkdir %s: %w", dir, err)
	}
	return nil
}

// CalculateFileChecksum computes the whole-file SHA-256 hash used to
// populate the container manifest.
func (p *Port) CalculateFileChecksum(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("fileio: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, fmt.Errorf("fileio: hash %s: %w", path, err)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ReadResult is the return value of ReadFileChunks: a bounded eager read.
type ReadResult struct {
	Chunks    []domain.FileChunk
	Info      FileInfo
	BytesRead uint64
	Complete  bool
}

// ReadFileChunks performs a bounded, eager, in-memory read of path split
// into fixed-stride chunks. Used by callers that need the whole set at
// once (tests, small-file fast paths); the production path for the
// scheduler is StreamFileChunks.
func (p *Port) ReadFileChunks(path string, opts ReadOptions) (ReadResult, error) {
	info, err := p.GetFileInfo(path)
	if err != nil {
		return ReadResult{}, err
	}

	var chunks []domain.FileChunk
	var bytesRead uint64
	it, closeFn, err := p.StreamFileChunks(path, opts)
	if err != nil {
		return ReadResult{}, err
	}
	defer closeFn()

	for {
		chunk, ok, err := it()
		if err != nil {
			return ReadResult{}, err
		}
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
		bytesRead += uint64(chunk.Size())
		if opts.MaxBytes > 0 && bytesRead >= opts.MaxBytes {
			break
		}
	}

	return ReadResult{Chunks: chunks, Info: info, BytesRead: bytesRead, Complete: true}, nil
}

// ChunkIterator yields one FileChunk per call; ok=false with a nil error
// signals clean end-of-stream.
type ChunkIterator func() (domain.FileChunk, bool, error)

// StreamFileChunks is the production read path used by the scheduler's
// reader task. It returns a lazy iterator producing FileChunk values with
// correct, dense SequenceNumber and Offset; chunk size is constant across
// the run except for a possibly-shorter final chunk. The returned close
// function must be called once the caller is done iterating.
func (p *Port) StreamFileChunks(path string, opts ReadOptions) (ChunkIterator, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("fileio: open %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("fileio: stat %s: %w", path, err)
	}
	totalSize := st.Size()

	chunkSize := opts.ChunkSize.Clamp()
	if opts.StartOffset > 0 {
		if _, err := f.Seek(int64(opts.StartOffset), io.SeekStart); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("fileio: seek %s: %w", path, err)
		}
	}

	var mapped []byte
	useMmap := opts.UseMemoryMapping
	if useMmap {
		mapped, err = mmapFile(f, p.maxMmapSize)
		if err != nil {
			p.logger.Warn("mmap unavailable, falling back to sequential read", zap.String("path", path), zap.Error(err))
			useMmap = false
		}
	}

	var seq domain.ChunkId
	offset := opts.StartOffset
	mmapPos := int(opts.StartOffset)
	emittedEmptyChunk := false

	next := func() (domain.FileChunk, bool, error) {
		// An empty input still produces exactly one (empty, final) chunk,
		// so the writer's expected chunk count and the container's
		// chunk_count always agree: a fixed-stride container with zero
		// records has no manifest-addressable content to reconstruct
		// from.
		if totalSize == 0 && offset == opts.StartOffset && !emittedEmptyChunk {
			emittedEmptyChunk = true
			chunk := domain.NewFileChunk(seq, offset, nil, true)
			seq++
			return chunk, true, nil
		}

		buf := make([]byte, chunkSize)
		var n int
		var readErr error

		if useMmap {
			if mmapPos >= len(mapped) {
				return domain.FileChunk{}, false, nil
			}
			end := mmapPos + int(chunkSize)
			if end > len(mapped) {
				end = len(mapped)
			}
			n = copy(buf, mapped[mmapPos:end])
			mmapPos += n
		} else {
			n, readErr = io.ReadFull(f, buf)
			if readErr == io.EOF {
				return domain.FileChunk{}, false, nil
			}
			if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) {
				return domain.FileChunk{}, false, fmt.Errorf("fileio: read %s: %w", path, readErr)
			}
		}
		if n == 0 {
			return domain.FileChunk{}, false, nil
		}

		if err := p.waitBandwidth(n); err != nil {
			return domain.FileChunk{}, false, err
		}

		isFinal := int64(offset)+int64(n) >= totalSize

		chunk := domain.NewFileChunk(seq, offset, buf[:n], isFinal)
		if opts.CalculateChecksums {
			sum := sha256.Sum256(chunk.Data)
			chunk = chunk.WithChecksum(sum)
		}

		seq++
		offset += uint64(n)
		return chunk, true, nil
	}

	closeFn := func() {
		if mapped != nil {
			_ = munmapFile(mapped)
		}
		f.Close()
	}

	return next, closeFn, nil
}

// WriteChunkToFile performs a single positional write. Used only by C7
// (internal/txwriter); the scheduler never calls this directly.
func (p *Port) WriteChunkToFile(path string, chunk domain.FileChunk, opts WriteOptions, isFirst bool) error {
	if opts.CreateDirs {
		if err := p.EnsureDir(path); err != nil {
			return err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if isFirst && !opts.Append {
		flags |= os.O_TRUNC
	}
	perm := opts.Permissions
	if perm == 0 {
		perm = 0o644
	}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return fmt.Errorf("fileio: open %s for write: %w", path, err)
	}
	defer f.Close()

	if err := p.waitBandwidth(len(chunk.Data)); err != nil {
		return err
	}

	if _, err := f.WriteAt(chunk.Data, int64(chunk.Offset)); err != nil {
		return fmt.Errorf("fileio: write %s at offset %d: %w", path, chunk.Offset, err)
	}

	if opts.Sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("fileio: fsync %s: %w", path, err)
		}
	}
	return nil
}
