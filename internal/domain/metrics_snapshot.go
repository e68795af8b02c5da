package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// StageMetrics is the per-stage contribution to a ProcessingMetrics
// snapshot.
type StageMetrics struct {
	StageName   string
	Bytes       uint64
	Duration    time.Duration
	ErrorCount  uint64
	SuccessRate float64
}

// ProcessingMetrics is a rolling, mergeable snapshot of a run's progress.
// Additive fields merge commutatively (see Merge); StartedAt/FinishedAt take
// the earliest/latest of the two snapshots being merged.
type ProcessingMetrics struct {
	BytesProcessed   uint64
	BytesTotal       uint64
	ChunksProcessed  uint64
	ChunksTotal      uint64
	StartedAt        time.Time
	FinishedAt       time.Time
	ThroughputBps    float64
	CompressionRatio *float64
	ErrorCount       uint64
	WarningCount     uint64
	InputSize        uint64
	OutputSize       uint64
	InputChecksum    [32]byte
	OutputChecksum   [32]byte
	PerStage         []StageMetrics
}

// Merge combines two snapshots, preserving commutativity over every additive
// field. CompressionRatio prefers whichever side has a value, favoring the
// receiver if both do.
func (m ProcessingMetrics) Merge(other ProcessingMetrics) ProcessingMetrics {
	out := m
	out.BytesProcessed += other.BytesProcessed
	out.BytesTotal += other.BytesTotal
	out.ChunksProcessed += other.ChunksProcessed
	out.ChunksTotal += other.ChunksTotal
	out.ErrorCount += other.ErrorCount
	out.WarningCount += other.WarningCount

	if out.StartedAt.IsZero() || (!other.StartedAt.IsZero() && other.StartedAt.Before(out.StartedAt)) {
		out.StartedAt = other.StartedAt
	}
	if other.FinishedAt.After(out.FinishedAt) {
		out.FinishedAt = other.FinishedAt
	}
	if out.CompressionRatio == nil {
		out.CompressionRatio = other.CompressionRatio
	}
	out.PerStage = append(append([]StageMetrics{}, out.PerStage...), other.PerStage...)
	return out
}

// Finalize computes ThroughputBps from StartedAt/FinishedAt/BytesProcessed.
func (m ProcessingMetrics) Finalize() ProcessingMetrics {
	out := m
	elapsed := out.FinishedAt.Sub(out.StartedAt).Seconds()
	if elapsed > 0 {
		out.ThroughputBps = float64(out.BytesProcessed) / elapsed
	}
	return out
}

// RunningCounters are the atomically-updated counters a scheduler mutates
// from multiple goroutines during a run, collapsed into a ProcessingMetrics
// snapshot on demand via Snapshot.
type RunningCounters struct {
	bytesProcessed  atomic.Uint64
	chunksProcessed atomic.Uint64
	errorCount      atomic.Uint64
	warningCount    atomic.Uint64
}

func (r *RunningCounters) AddBytes(n uint64)   { r.bytesProcessed.Add(n) }
func (r *RunningCounters) AddChunk()           { r.chunksProcessed.Add(1) }
func (r *RunningCounters) AddError()           { r.errorCount.Add(1) }
func (r *RunningCounters) AddWarning()         { r.warningCount.Add(1) }

// Snapshot reads the current counter values into a ProcessingMetrics value.
func (r *RunningCounters) Snapshot() ProcessingMetrics {
	return ProcessingMetrics{
		BytesProcessed:  r.bytesProcessed.Load(),
		ChunksProcessed: r.chunksProcessed.Load(),
		ErrorCount:      r.errorCount.Load(),
		WarningCount:    r.warningCount.Load(),
	}
}
