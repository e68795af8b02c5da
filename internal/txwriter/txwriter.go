// Package txwriter implements the transactional chunk writer (C7): ACID
// writes to a staging file at chunk-indexed offsets, atomic rename on
// commit, cleanup on rollback.
//
// Follows a staging-file-plus-offset-validated-writes idiom: a sibling
// "<final>.tmp" staging file (rather than a random temp name) so a crash
// leaves a discoverable artifact for operator cleanup, written in place
// with positional WriteAt calls and committed via Sync/Close/os.Rename. In-flight byte
// counters are tracked with sync/atomic outside the write lock, kept
// separate from the locked write path itself.
package txwriter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/FairForge/adapipe/internal/containerformat"
	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/metrics"
)

// ErrIncompleteTransaction is returned by Commit when fewer than
// expectedChunkCount distinct sequence numbers were written.
var ErrIncompleteTransaction = errors.New("txwriter: incomplete transaction")

// CheckpointInterval is how many chunks elapse between fsync checkpoints.
const CheckpointInterval = 64

// Writer provides all-or-nothing semantics for a stream of chunks whose
// arrival order is nondeterministic. It is safe to share across goroutines:
// the lock scope is exactly the seek+write pair, with progress counters
// updated atomically outside the lock.
type Writer struct {
	finalPath   string
	stagingPath string
	recordSize  uint32
	expected    uint64
	logger      *zap.Logger

	mu   sync.Mutex
	file *os.File

	completedMu sync.Mutex
	completed   map[uint64]struct{}

	chunksWritten atomic.Uint64
	bytesWritten  atomic.Uint64

	finished atomic.Bool // true once Commit or Rollback has run

	sink metrics.Sink
}

// Open opens (creating if absent) the sibling staging file "<final>.tmp".
func Open(finalPath string, expectedChunkCount uint64, recordSize uint32, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stagingPath := finalPath + ".tmp"

	f, err := os.OpenFile(stagingPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("txwriter: open staging file %s: %w", stagingPath, err)
	}

	w := &Writer{
		finalPath:   finalPath,
		stagingPath: stagingPath,
		recordSize:  recordSize,
		expected:    expectedChunkCount,
		logger:      logger,
		file:        f,
		completed:   make(map[uint64]struct{}, expectedChunkCount),
		sink:        metrics.NoopSink{},
	}
	return w, nil
}

// SetMetricsSink wires a metrics.Sink the writer publishes write-progress
// counters and gauges through. Defaults to metrics.NoopSink.
func (w *Writer) SetMetricsSink(sink metrics.Sink) {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	w.sink = sink
}

// WriteChunkAtPosition serializes chunk via the container codec's per-chunk
// framing and writes it to offset sequence_number × record_size, under the
// writer's single file lock. Progress counters are updated atomically after
// the write succeeds, outside the lock.
func (w *Writer) WriteChunkAtPosition(chunk domain.FileChunk, nonce [containerformat.NonceSize]byte) error {
	record, err := containerformat.EncodeChunkRecord(nonce, chunk.Data, w.recordSize)
	if err != nil {
		return fmt.Errorf("txwriter: encode chunk %d: %w", chunk.SequenceNumber, err)
	}

	offset := int64(uint64(chunk.SequenceNumber) * uint64(w.recordSize))

	w.mu.Lock()
	_, err = w.file.WriteAt(record, offset)
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("txwriter: write chunk %d at offset %d: %w", chunk.SequenceNumber, offset, err)
	}

	w.chunksWritten.Add(1)
	w.bytesWritten.Add(uint64(len(chunk.Data)))

	w.completedMu.Lock()
	w.completed[uint64(chunk.SequenceNumber)] = struct{}{}
	count := len(w.completed)
	w.completedMu.Unlock()
	w.publishProgress(count)

	if count%CheckpointInterval == 0 {
		w.mu.Lock()
		err = w.file.Sync()
		w.mu.Unlock()
		if err != nil {
			return fmt.Errorf("txwriter: checkpoint fsync: %w", err)
		}
	}

	return nil
}

// publishProgress reports the writer's own view of outstanding work: how
// many of the expected chunks remain unwritten. completedCount is read
// under completedMu by the caller before this is invoked.
func (w *Writer) publishProgress(completedCount int) {
	w.sink.IncCounter("writer.chunks_written", nil, 1)
	remaining := float64(w.expected) - float64(completedCount)
	if remaining < 0 {
		remaining = 0
	}
	w.sink.SetGauge("writer.queue_depth", nil, remaining)
}

// AppendManifest writes the trailing manifest and footer to the staging
// file at its current end, before Commit finalizes the transaction. The
// write happens under the same lock as chunk writes so it cannot interleave
// with an in-flight WriteChunkAtPosition call.
func (w *Writer) AppendManifest(manifest containerformat.Manifest) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("txwriter: seek to end for manifest: %w", err)
	}
	if err := containerformat.AppendManifest(w.file, manifest); err != nil {
		return fmt.Errorf("txwriter: append manifest: %w", err)
	}
	return nil
}

// WriteRawChunkAtPosition writes chunk.Data unframed at chunk.Offset. Used
// by Reverse processing to reconstruct the original file, where the
// transactional staging-file/atomic-rename discipline is worth keeping but
// the container's nonce+length record framing does not apply.
func (w *Writer) WriteRawChunkAtPosition(chunk domain.FileChunk) error {
	w.mu.Lock()
	_, err := w.file.WriteAt(chunk.Data, int64(chunk.Offset))
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("txwriter: write raw chunk %d at offset %d: %w", chunk.SequenceNumber, chunk.Offset, err)
	}

	w.chunksWritten.Add(1)
	w.bytesWritten.Add(uint64(len(chunk.Data)))

	w.completedMu.Lock()
	w.completed[uint64(chunk.SequenceNumber)] = struct{}{}
	count := len(w.completed)
	w.completedMu.Unlock()
	w.publishProgress(count)

	if count%CheckpointInterval == 0 {
		w.mu.Lock()
		err = w.file.Sync()
		w.mu.Unlock()
		if err != nil {
			return fmt.Errorf("txwriter: checkpoint fsync: %w", err)
		}
	}
	return nil
}

// ChunksWritten returns the atomic write counter.
func (w *Writer) ChunksWritten() uint64 { return w.chunksWritten.Load() }

// BytesWritten returns the atomic byte counter.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten.Load() }

// Commit validates that every expected sequence number was written, fsyncs,
// and atomically renames the staging file to its final path.
func (w *Writer) Commit() error {
	w.completedMu.Lock()
	count := uint64(len(w.completed))
	w.completedMu.Unlock()

	if count != w.expected {
		return fmt.Errorf("txwriter: committed %d of %d expected chunks: %w", count, w.expected, ErrIncompleteTransaction)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("txwriter: final fsync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("txwriter: close staging file: %w", err)
	}
	if err := os.Rename(w.stagingPath, w.finalPath); err != nil {
		return fmt.Errorf("txwriter: rename %s to %s: %w", w.stagingPath, w.finalPath, err)
	}

	w.finished.Store(true)
	return nil
}

// Rollback closes the staging file handle and removes it. Used on
// cancellation, timeout, or any upstream failure.
func (w *Writer) Rollback() error {
	w.mu.Lock()
	closeErr := w.file.Close()
	w.mu.Unlock()

	removeErr := os.Remove(w.stagingPath)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		w.logger.Warn("txwriter: failed to remove staging file on rollback", zap.String("path", w.stagingPath), zap.Error(removeErr))
	} else {
		w.logger.Info("txwriter: rolled back transaction", zap.String("path", w.stagingPath))
	}

	w.finished.Store(true)

	if closeErr != nil {
		return fmt.Errorf("txwriter: close staging file during rollback: %w", closeErr)
	}
	return removeErr
}

// Close warns if the writer is dropped without an explicit Commit or
// Rollback: the staging file is left in place for operator cleanup. It
// does not itself roll back — that decision belongs to the caller.
func (w *Writer) Close() {
	if !w.finished.Load() {
		w.logger.Warn("txwriter: writer dropped without commit or rollback; staging file left in place", zap.String("path", w.stagingPath))
	}
}
