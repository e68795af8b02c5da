// Package observer defines the progress observer contract external
// callers implement to receive lifecycle and progress events from a
// pipeline run, plus a logging reference implementation.
//
// The logging reference implementation follows the module's per-chunk
// zap.Debug logging idiom directly.
package observer

import (
	"time"

	"github.com/FairForge/adapipe/internal/domain"
)

// ProgressObserver receives lifecycle and progress events for a single
// run. Implementations MUST NOT block for long: the scheduler's worker
// goroutines call these synchronously as part of their own critical path.
type ProgressObserver interface {
	OnProcessingStarted(totalBytes uint64)
	OnChunkStarted(chunkID domain.ChunkId, size int)
	OnChunkCompleted(chunkID domain.ChunkId, duration time.Duration)
	// OnProgressUpdate is monotonic in bytesProcessed across a run.
	OnProgressUpdate(bytesProcessed, totalBytes uint64, throughputMbps float64)
	OnProcessingCompleted(duration time.Duration, finalMetrics *domain.ProcessingMetrics)
}

// Multi fans a single set of events out to every observer in order. Used
// by the scheduler when more than one observer is registered for a run.
type Multi []ProgressObserver

func (m Multi) OnProcessingStarted(totalBytes uint64) {
	for _, o := range m {
		o.OnProcessingStarted(totalBytes)
	}
}

func (m Multi) OnChunkStarted(chunkID domain.ChunkId, size int) {
	for _, o := range m {
		o.OnChunkStarted(chunkID, size)
	}
}

func (m Multi) OnChunkCompleted(chunkID domain.ChunkId, duration time.Duration) {
	for _, o := range m {
		o.OnChunkCompleted(chunkID, duration)
	}
}

func (m Multi) OnProgressUpdate(bytesProcessed, totalBytes uint64, throughputMbps float64) {
	for _, o := range m {
		o.OnProgressUpdate(bytesProcessed, totalBytes, throughputMbps)
	}
}

func (m Multi) OnProcessingCompleted(duration time.Duration, finalMetrics *domain.ProcessingMetrics) {
	for _, o := range m {
		o.OnProcessingCompleted(duration, finalMetrics)
	}
}

// NoOp discards every event. Useful as a default when the caller passes no
// observer.
type NoOp struct{}

func (NoOp) OnProcessingStarted(uint64)                                           {}
func (NoOp) OnChunkStarted(domain.ChunkId, int)                                   {}
func (NoOp) OnChunkCompleted(domain.ChunkId, time.Duration)                       {}
func (NoOp) OnProgressUpdate(uint64, uint64, float64)                             {}
func (NoOp) OnProcessingCompleted(time.Duration, *domain.ProcessingMetrics)       {}
