// Package scheduler implements the reader/worker-pool/writer orchestration
// (C9) that drives one Forward or Reverse run end to end: admission through
// the governor, per-chunk dispatch through the executor, transactional
// output via txwriter, and observer fan-out, all torn down cooperatively on
// the first error or on context cancellation.
//
// Semaphore-bounded goroutine fan-out over a worker-pool-over-channel
// shape, coordinated with golang.org/x/sync/errgroup for first-error
// cancellation rather than a manual sync.WaitGroup-and-channels idiom.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/FairForge/adapipe/internal/containerformat"
	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/executor"
	"github.com/FairForge/adapipe/internal/fileio"
	"github.com/FairForge/adapipe/internal/governor"
	"github.com/FairForge/adapipe/internal/metrics"
	"github.com/FairForge/adapipe/internal/observer"
	"github.com/FairForge/adapipe/internal/pipeline"
	"github.com/FairForge/adapipe/internal/stage"
	"github.com/FairForge/adapipe/internal/txwriter"
)

// Options configures a single run. Pipeline is required for RunForward;
// RunReverse recovers its stage graph from the container's own manifest and
// ignores Pipeline.
type Options struct {
	InputPath            string
	OutputPath           string
	Pipeline             *pipeline.Pipeline
	Observer             observer.ProgressObserver
	SecurityLevel        domain.SecurityLevel
	WorkerCountOverride  int
	ChannelDepthOverride int
}

// Scheduler owns no state across runs beyond its collaborators; every Run*
// call is independent and safe to invoke concurrently for different files.
type Scheduler struct {
	io     *fileio.Port
	exec   *executor.Executor
	gov    *governor.Governor
	logger *zap.Logger
	sink   metrics.Sink
}

// New constructs a Scheduler bound to its collaborators.
func New(io *fileio.Port, exec *executor.Executor, gov *governor.Governor, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{io: io, exec: exec, gov: gov, logger: logger, sink: metrics.NoopSink{}}
}

// SetMetricsSink wires a metrics.Sink the scheduler publishes per-run
// counters and gauges through (pipeline.chunks_processed,
// pipeline.bytes_processed, pipeline.chunk_duration_ms, pipeline.errors).
// Defaults to metrics.NoopSink.
func (s *Scheduler) SetMetricsSink(sink metrics.Sink) {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	s.sink = sink
}

// RunForward reads InputPath, runs every enabled stage of Options.Pipeline
// over each fixed-stride chunk, and writes a self-describing container to
// OutputPath. The container is only renamed into place once every expected
// chunk has been written and the manifest appended (txwriter's commit
// discipline); any error rolls the staging file back.
func (s *Scheduler) RunForward(ctx context.Context, opts Options) (domain.ProcessingMetrics, error) {
	obs := opts.Observer
	if obs == nil {
		obs = observer.NoOp{}
	}

	info, err := s.io.GetFileInfo(opts.InputPath)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}

	chunkSize := opts.Pipeline.ChunkSize()
	chunkCount := chunkCountFor(uint64(info.Size), uint32(chunkSize))
	workerCount := resolveWorkerCount(opts.WorkerCountOverride, info.Size)
	channelDepth := resolveChannelDepth(opts.ChannelDepthOverride, workerCount)

	inputChecksum, err := s.io.CalculateFileChecksum(opts.InputPath)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}

	pctx := domain.NewProcessingContext(opts.InputPath, opts.OutputPath, uint64(info.Size), opts.SecurityLevel)
	counters := &domain.RunningCounters{}
	started := time.Now()

	writer, err := txwriter.Open(opts.OutputPath, chunkCount, opts.Pipeline.RecordSize(), s.logger)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	writer.SetMetricsSink(s.sink)
	committed := false
	defer func() {
		if !committed {
			_ = writer.Rollback()
		}
	}()

	stages := opts.Pipeline.Stages()
	obs.OnProcessingStarted(uint64(info.Size))
	progress := newProgressReporter(obs, uint64(info.Size), started)

	// Per-file semaphore: sized to this run's own worker
	// count, acquired once per worker before it touches the global
	// governor. It caps what a single file's run can push into the shared
	// CPU/IO pools independently of the governor's own limits, so N
	// concurrent files each spawning up to workerCount workers cannot
	// oversubscribe the host beyond N×workerCount in flight.
	fileSem := semaphore.NewWeighted(int64(workerCount))

	group, gctx := errgroup.WithContext(ctx)
	chunks := make(chan domain.FileChunk, channelDepth)

	group.Go(func() error {
		defer close(chunks)
		return s.readForward(gctx, opts.InputPath, chunkSize, chunks)
	})

	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			if err := fileSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer fileSem.Release(1)
			return s.forwardWorker(gctx, chunks, stages, pctx, writer, counters, obs, progress)
		})
	}

	if err := group.Wait(); err != nil {
		counters.AddError()
		s.sink.IncCounter("pipeline.errors", nil, 1)
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: forward run: %w", err)
	}

	steps := stepsFromStages(stages)
	manifest := containerformat.NewManifest(
		uint64(info.Size), inputChecksum, opts.Pipeline.RecordSize(), chunkCount, steps, started, uint32(chunkSize),
	)
	if err := writer.AppendManifest(manifest); err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	if err := writer.Commit(); err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	committed = true

	finished := time.Now()
	outInfo, err := s.io.GetFileInfo(opts.OutputPath)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}

	result := counters.Snapshot()
	result.StartedAt = started
	result.FinishedAt = finished
	result.InputSize = uint64(info.Size)
	result.OutputSize = uint64(outInfo.Size)
	result.InputChecksum = inputChecksum
	result.ChunksTotal = chunkCount
	result.BytesTotal = uint64(info.Size)
	result = result.Finalize()

	obs.OnProcessingCompleted(finished.Sub(started), &result)
	return result, nil
}

func (s *Scheduler) readForward(ctx context.Context, path string, chunkSize domain.ChunkSize, out chan<- domain.FileChunk) error {
	iter, closeFn, err := s.io.StreamFileChunks(path, fileio.ReadOptions{ChunkSize: chunkSize})
	if err != nil {
		return err
	}
	defer closeFn()

	for {
		permit, err := s.gov.AcquireIO(ctx)
		if err != nil {
			return err
		}
		chunk, ok, err := iter()
		permit.Release()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) forwardWorker(ctx context.Context, in <-chan domain.FileChunk, stages []stage.PipelineStage, pctx *domain.ProcessingContext, writer *txwriter.Writer, counters *domain.RunningCounters, obs observer.ProgressObserver, progress *progressReporter) error {
	var nonce [containerformat.NonceSize]byte
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			start := time.Now()
			obs.OnChunkStarted(chunk.SequenceNumber, chunk.Size())

			permit, err := s.gov.AcquireCPU(ctx)
			if err != nil {
				return err
			}
			processed, err := s.exec.Execute(chunk, stages, stage.Forward, pctx)
			permit.Release()
			if err != nil {
				return err
			}

			if err := writer.WriteChunkAtPosition(processed, nonce); err != nil {
				return err
			}

			counters.AddBytes(uint64(chunk.Size()))
			counters.AddChunk()
			duration := time.Since(start)
			s.sink.IncCounter("pipeline.chunks_processed", nil, 1)
			s.sink.IncCounter("pipeline.bytes_processed", nil, uint64(chunk.Size()))
			s.sink.ObserveHistogram("pipeline.chunk_duration_ms", nil, float64(duration.Milliseconds()))
			obs.OnChunkCompleted(chunk.SequenceNumber, duration)
			progress.report(counters.Snapshot().BytesProcessed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunReverse opens InputPath as an .adapipe container, recovers the stage
// graph that produced it from the trailing manifest, and reconstructs the
// original file at OutputPath. It fails fast with a *stage.NotReversibleError
// before any chunk is processed if any recorded step cannot run in reverse.
func (s *Scheduler) RunReverse(ctx context.Context, opts Options) (domain.ProcessingMetrics, error) {
	obs := opts.Observer
	if obs == nil {
		obs = observer.NoOp{}
	}

	f, err := os.Open(opts.InputPath)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}

	container, err := containerformat.Open(f, st.Size())
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}

	stages := stagesFromSteps(container.Manifest.Steps)
	if err := s.exec.CheckReversible(stages); err != nil {
		return domain.ProcessingMetrics{}, err
	}

	chunkSize := container.Manifest.OriginalChunkSize
	chunkCount := container.Manifest.ChunkCount
	workerCount := resolveWorkerCount(opts.WorkerCountOverride, int64(container.Manifest.OriginalSize))
	channelDepth := resolveChannelDepth(opts.ChannelDepthOverride, workerCount)

	pctx := domain.NewProcessingContext(opts.InputPath, opts.OutputPath, container.Manifest.OriginalSize, opts.SecurityLevel)
	counters := &domain.RunningCounters{}
	started := time.Now()

	writer, err := txwriter.Open(opts.OutputPath, chunkCount, container.Manifest.RecordSize, s.logger)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	writer.SetMetricsSink(s.sink)
	committed := false
	defer func() {
		if !committed {
			_ = writer.Rollback()
		}
	}()

	obs.OnProcessingStarted(container.Manifest.OriginalSize)
	progress := newProgressReporter(obs, container.Manifest.OriginalSize, started)

	fileSem := semaphore.NewWeighted(int64(workerCount))

	group, gctx := errgroup.WithContext(ctx)
	chunks := make(chan domain.FileChunk, channelDepth)

	group.Go(func() error {
		defer close(chunks)
		return s.readReverse(gctx, container, chunkSize, chunkCount, chunks)
	})

	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			if err := fileSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer fileSem.Release(1)
			return s.reverseWorker(gctx, chunks, stages, pctx, writer, counters, obs, progress)
		})
	}

	if err := group.Wait(); err != nil {
		counters.AddError()
		s.sink.IncCounter("pipeline.errors", nil, 1)
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: reverse run: %w", err)
	}

	if err := writer.Commit(); err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	committed = true

	finished := time.Now()
	outputChecksum, err := s.io.CalculateFileChecksum(opts.OutputPath)
	if err != nil {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: %w", err)
	}
	var originalChecksum [32]byte
	copy(originalChecksum[:], container.Manifest.OriginalChecksum)
	if outputChecksum != originalChecksum {
		return domain.ProcessingMetrics{}, fmt.Errorf("scheduler: reconstructed file checksum mismatch: %w", containerformat.ErrCorruptContainer)
	}

	result := counters.Snapshot()
	result.StartedAt = started
	result.FinishedAt = finished
	result.InputSize = uint64(st.Size())
	result.OutputSize = container.Manifest.OriginalSize
	result.InputChecksum = originalChecksum
	result.OutputChecksum = outputChecksum
	result.ChunksTotal = chunkCount
	result.BytesTotal = container.Manifest.OriginalSize
	result = result.Finalize()

	obs.OnProcessingCompleted(finished.Sub(started), &result)
	return result, nil
}

func (s *Scheduler) readReverse(ctx context.Context, container *containerformat.Reader, chunkSize uint32, chunkCount uint64, out chan<- domain.FileChunk) error {
	for seq := uint64(0); seq < chunkCount; seq++ {
		permit, err := s.gov.AcquireIO(ctx)
		if err != nil {
			return err
		}
		_, payload, err := container.ReadChunkRecord(seq)
		permit.Release()
		if err != nil {
			return err
		}

		chunk := domain.NewFileChunk(domain.ChunkId(seq), seq*uint64(chunkSize), payload, seq == chunkCount-1)
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) reverseWorker(ctx context.Context, in <-chan domain.FileChunk, stages []stage.PipelineStage, pctx *domain.ProcessingContext, writer *txwriter.Writer, counters *domain.RunningCounters, obs observer.ProgressObserver, progress *progressReporter) error {
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			start := time.Now()
			obs.OnChunkStarted(chunk.SequenceNumber, chunk.Size())

			permit, err := s.gov.AcquireCPU(ctx)
			if err != nil {
				return err
			}
			restored, err := s.exec.Execute(chunk, stages, stage.Reverse, pctx)
			permit.Release()
			if err != nil {
				return err
			}
			restored.Offset = chunk.Offset

			if err := writer.WriteRawChunkAtPosition(restored); err != nil {
				return err
			}

			counters.AddBytes(uint64(restored.Size()))
			counters.AddChunk()
			duration := time.Since(start)
			s.sink.IncCounter("pipeline.chunks_processed", nil, 1)
			s.sink.IncCounter("pipeline.bytes_processed", nil, uint64(restored.Size()))
			s.sink.ObserveHistogram("pipeline.chunk_duration_ms", nil, float64(duration.Milliseconds()))
			obs.OnChunkCompleted(chunk.SequenceNumber, duration)
			progress.report(counters.Snapshot().BytesProcessed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// progressReporter serializes OnProgressUpdate calls across concurrent
// workers so bytesProcessed is always reported non-decreasing. Workers
// race to read the shared counters, but the lock here ensures the
// sequence of values actually delivered to the observer never goes
// backwards even if reads interleave.
type progressReporter struct {
	mu           sync.Mutex
	obs          observer.ProgressObserver
	totalBytes   uint64
	started      time.Time
	lastReported uint64
}

func newProgressReporter(obs observer.ProgressObserver, totalBytes uint64, started time.Time) *progressReporter {
	return &progressReporter{obs: obs, totalBytes: totalBytes, started: started}
}

func (p *progressReporter) report(bytesProcessed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bytesProcessed <= p.lastReported {
		return
	}
	p.lastReported = bytesProcessed

	elapsed := time.Since(p.started).Seconds()
	var throughputMbps float64
	if elapsed > 0 {
		throughputMbps = (float64(bytesProcessed) / elapsed) / (1024 * 1024)
	}
	p.obs.OnProgressUpdate(bytesProcessed, p.totalBytes, throughputMbps)
}

func chunkCountFor(fileSize uint64, chunkSize uint32) uint64 {
	if fileSize == 0 {
		return 1
	}
	count := fileSize / uint64(chunkSize)
	if fileSize%uint64(chunkSize) != 0 {
		count++
	}
	return count
}

func resolveWorkerCount(override int, fileSize int64) int {
	if override > 0 {
		return override
	}
	return int(domain.OptimalForFileSize(fileSize, runtime.NumCPU()))
}

func resolveChannelDepth(override int, workerCount int) int {
	if override > 0 {
		return override
	}
	return workerCount * 2
}

func stepsFromStages(stages []stage.PipelineStage) []containerformat.StepDescriptor {
	out := make([]containerformat.StepDescriptor, 0, len(stages))
	for _, st := range stages {
		if !st.Enabled {
			continue
		}
		out = append(out, containerformat.StepDescriptor{
			StageType:  st.Type.String(),
			Algorithm:  st.Configuration.Algorithm,
			Parameters: st.Configuration.Parameters,
			Order:      st.Order,
		})
	}
	return out
}

func stagesFromSteps(steps []containerformat.StepDescriptor) []stage.PipelineStage {
	out := make([]stage.PipelineStage, len(steps))
	for i, step := range steps {
		out[i] = stage.PipelineStage{
			Name: fmt.Sprintf("%s:%s", step.StageType, step.Algorithm),
			Type: parseStageType(step.StageType),
			Configuration: stage.Configuration{
				Algorithm:  step.Algorithm,
				Parameters: step.Parameters,
			},
			Enabled: true,
			Order:   step.Order,
		}
	}
	return out
}

func parseStageType(s string) stage.StageType {
	switch s {
	case "compression":
		return stage.StageTypeCompression
	case "encryption":
		return stage.StageTypeEncryption
	case "checksum":
		return stage.StageTypeChecksum
	case "transform":
		return stage.StageTypeTransform
	default:
		return stage.StageTypePassThrough
	}
}
