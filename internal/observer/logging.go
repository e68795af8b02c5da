package observer

import (
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/adapipe/internal/domain"
)

// LoggingObserver emits one zap log line per lifecycle/progress event, in
// the same per-chunk debug-logging style used elsewhere in this module.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver wraps logger (zap.NewNop() if nil) as a
// ProgressObserver.
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnProcessingStarted(totalBytes uint64) {
	o.logger.Info("processing started", zap.Uint64("total_bytes", totalBytes))
}

func (o *LoggingObserver) OnChunkStarted(chunkID domain.ChunkId, size int) {
	o.logger.Debug("chunk started", zap.Uint64("chunk_id", uint64(chunkID)), zap.Int("size", size))
}

func (o *LoggingObserver) OnChunkCompleted(chunkID domain.ChunkId, duration time.Duration) {
	o.logger.Debug("chunk completed", zap.Uint64("chunk_id", uint64(chunkID)), zap.Duration("duration", duration))
}

func (o *LoggingObserver) OnProgressUpdate(bytesProcessed, totalBytes uint64, throughputMbps float64) {
	o.logger.Info("progress",
		zap.Uint64("bytes_processed", bytesProcessed),
		zap.Uint64("total_bytes", totalBytes),
		zap.Float64("throughput_mbps", throughputMbps),
	)
}

func (o *LoggingObserver) OnProcessingCompleted(duration time.Duration, finalMetrics *domain.ProcessingMetrics) {
	fields := []zap.Field{zap.Duration("duration", duration)}
	if finalMetrics != nil {
		fields = append(fields,
			zap.Uint64("bytes_processed", finalMetrics.BytesProcessed),
			zap.Uint64("chunks_processed", finalMetrics.ChunksProcessed),
			zap.Uint64("error_count", finalMetrics.ErrorCount),
		)
	}
	o.logger.Info("processing completed", fields...)
}
