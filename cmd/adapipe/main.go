// cmd/adapipe/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/adapipe/internal/config"
	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/executor"
	"github.com/FairForge/adapipe/internal/fileio"
	"github.com/FairForge/adapipe/internal/governor"
	"github.com/FairForge/adapipe/internal/metrics"
	"github.com/FairForge/adapipe/internal/observer"
	"github.com/FairForge/adapipe/internal/repository"
	"github.com/FairForge/adapipe/internal/scheduler"
	"github.com/FairForge/adapipe/internal/stagecatalog"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	inputPath := os.Getenv("ADAPIPE_INPUT")
	outputPath := os.Getenv("ADAPIPE_OUTPUT")
	pipelineName := os.Getenv("ADAPIPE_PIPELINE")
	mode := os.Getenv("ADAPIPE_MODE")
	if mode == "" {
		mode = "forward"
	}

	if inputPath == "" || outputPath == "" || pipelineName == "" {
		logger.Fatal("missing required environment variables",
			zap.String("need", "ADAPIPE_INPUT, ADAPIPE_OUTPUT, ADAPIPE_PIPELINE"))
	}

	pipelineDir := os.Getenv("ADAPIPE_PIPELINE_DIR")

	workers := 0
	if w := os.Getenv("ADAPIPE_WORKERS"); w != "" {
		if _, err := fmt.Sscanf(w, "%d", &workers); err != nil {
			logger.Warn("invalid ADAPIPE_WORKERS, using heuristic default", zap.String("value", w), zap.Error(err))
			workers = 0
		}
	}

	channelDepth := 0
	if d := os.Getenv("ADAPIPE_CHANNEL_DEPTH"); d != "" {
		if _, err := fmt.Sscanf(d, "%d", &channelDepth); err != nil {
			logger.Warn("invalid ADAPIPE_CHANNEL_DEPTH, using default", zap.String("value", d), zap.Error(err))
			channelDepth = 0
		}
	}

	cores := 0
	if c := os.Getenv("ADAPIPE_CORES"); c != "" {
		if _, err := fmt.Sscanf(c, "%d", &cores); err != nil {
			logger.Warn("invalid ADAPIPE_CORES, consulting runtime.NumCPU", zap.String("value", c), zap.Error(err))
			cores = 0
		}
	}

	maxBytesPerSecond := 0
	if b := os.Getenv("ADAPIPE_MAX_BYTES_PER_SEC"); b != "" {
		if _, err := fmt.Sscanf(b, "%d", &maxBytesPerSecond); err != nil {
			logger.Warn("invalid ADAPIPE_MAX_BYTES_PER_SEC, leaving throughput unlimited", zap.String("value", b), zap.Error(err))
			maxBytesPerSecond = 0
		}
	}

	cfg := config.ApplyDefaults(config.Config{
		PipelineDir:       pipelineDir,
		MaxBytesPerSecond: maxBytesPerSecond,
		Governor: config.GovernorConfig{
			StorageClass:   storageClassFromEnv(os.Getenv("ADAPIPE_STORAGE_CLASS")),
			AvailableCores: cores,
		},
	})

	gov, err := governor.Init(cfg.Governor.ToGovernorConfig())
	if err != nil {
		logger.Fatal("governor already initialized", zap.Error(err))
	}

	sink := metrics.NewPrometheusSink()
	gov.SetMetricsSink(sink)

	registry := stagecatalog.Register()
	exec := executor.New(registry)
	port := fileio.NewPort(logger, cfg.MaxMmapSize)
	port.SetBandwidthLimit(cfg.MaxBytesPerSecond)

	repo, err := repository.NewFileRepository(cfg.PipelineDir)
	if err != nil {
		logger.Fatal("failed to open pipeline repository", zap.String("dir", cfg.PipelineDir), zap.Error(err))
	}

	p, err := repo.FindByName(pipelineName)
	if err != nil {
		logger.Fatal("failed to load pipeline", zap.String("name", pipelineName), zap.Error(err))
	}

	sched := scheduler.New(port, exec, gov, logger)
	sched.SetMetricsSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down...")
		cancel()
	}()

	opts := scheduler.Options{
		InputPath:            inputPath,
		OutputPath:           outputPath,
		Pipeline:             p,
		Observer:             observer.NewLoggingObserver(logger),
		WorkerCountOverride:  workers,
		ChannelDepthOverride: channelDepth,
	}

	started := time.Now()
	var result, runErr = run(ctx, sched, mode, opts)
	if runErr != nil {
		logger.Fatal("run failed", zap.String("mode", mode), zap.Error(runErr))
	}

	logger.Info("run completed",
		zap.String("mode", mode),
		zap.Duration("wall_time", time.Since(started)),
		zap.Uint64("bytes_processed", result.BytesProcessed),
		zap.Uint64("chunks_processed", result.ChunksProcessed),
		zap.Float64("throughput_bps", result.ThroughputBps),
	)
}

func run(ctx context.Context, sched *scheduler.Scheduler, mode string, opts scheduler.Options) (domain.ProcessingMetrics, error) {
	switch mode {
	case "forward":
		return sched.RunForward(ctx, opts)
	case "reverse":
		return sched.RunReverse(ctx, opts)
	default:
		return domain.ProcessingMetrics{}, fmt.Errorf("cmd/adapipe: unknown ADAPIPE_MODE %q: must be %q or %q", mode, "forward", "reverse")
	}
}

func storageClassFromEnv(s string) governor.StorageClass {
	switch s {
	case "nvme":
		return governor.StorageNVMe
	case "ssd":
		return governor.StorageSSD
	case "hdd":
		return governor.StorageHDD
	default:
		return governor.StorageAuto
	}
}
