// Package config is the engine-level configuration record: resource
// governor limits, default chunk size, and per-worker channel depth. This
// is not a CLI flag parser or a TOML/YAML file loader — argument parsing
// and config-file loading stay out of the core — it is the plain struct
// the core is wired up from, by cmd/adapipe or by a test.
//
// A plain struct-of-structs record with no struct tags, defaulted by a
// straight-line ApplyDefaults function rather than a reflection-based tag
// reader.
package config

import (
	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/governor"
)

// GovernorConfig mirrors governor.Config with yaml-free, config-package
// naming; ToGovernorConfig projects it into the shape governor.Init wants.
type GovernorConfig struct {
	StorageClass   governor.StorageClass
	CustomIOTokens int
	MemoryCapacity uint64
	AvailableCores int
}

// ToGovernorConfig projects a GovernorConfig into governor.Config.
func (g GovernorConfig) ToGovernorConfig() governor.Config {
	return governor.Config{
		StorageClass:   g.StorageClass,
		CustomIOTokens: g.CustomIOTokens,
		MemoryCapacity: g.MemoryCapacity,
		AvailableCores: g.AvailableCores,
	}
}

// Config is the top-level engine configuration record.
type Config struct {
	Governor GovernorConfig

	// DefaultChunkSize is filled in by ApplyDefaults; no other package reads
	// it. pipeline.New clamps a zero chunk size to domain.MinChunkSize on its
	// own.
	DefaultChunkSize domain.ChunkSize

	// ChannelDepthPerWorker is a channel-depth multiple of the worker count
	// that ApplyDefaults sets to 2, the same multiple
	// scheduler.resolveChannelDepth uses by default. Neither cmd/adapipe nor
	// the scheduler reads this field.
	ChannelDepthPerWorker int

	// MaxMmapSize is the file-size threshold above which fileio.Port will
	// memory-map an input when a caller opts in via ReadOptions.
	MaxMmapSize int64

	// MaxBytesPerSecond caps the fileio.Port's aggregate read/write
	// throughput. Zero means unlimited.
	MaxBytesPerSecond int

	// PipelineDir is where the FileRepository reference adapter looks for
	// persisted pipeline YAML documents.
	PipelineDir string
}

// ApplyDefaults fills zero-valued fields with the engine's built-in
// defaults: a "missing value gets a sane default" idiom, applied directly
// rather than via struct-tag reflection.
func ApplyDefaults(cfg Config) Config {
	if cfg.DefaultChunkSize == 0 {
		cfg.DefaultChunkSize = domain.DefaultChunkSize
	}
	if cfg.ChannelDepthPerWorker <= 0 {
		cfg.ChannelDepthPerWorker = 2
	}
	if cfg.PipelineDir == "" {
		cfg.PipelineDir = "./pipelines"
	}
	return cfg
}
