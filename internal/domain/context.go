package domain

import "sync"

// SecurityLevel tags the sensitivity of a processing run for stages that
// want to branch on it (e.g. PII masking strictness).
type SecurityLevel int

const (
	SecurityLevelStandard SecurityLevel = iota
	SecurityLevelElevated
	SecurityLevelRestricted
)

// ProcessingContext is the per-run mutable scratchpad threaded alongside
// chunks through the executor. It is created once per file processing run
// and discarded at the end; worker access is serialized per chunk, so the
// only contention is between the owning goroutine and occasional reads from
// the scheduler (e.g. progress reporting), guarded by mu.
type ProcessingContext struct {
	InputPath       string
	OutputPath      string
	OriginalSize    uint64
	SecurityLevel   SecurityLevel
	UserWorkerOverride int

	mu       sync.Mutex
	metadata map[string]string
}

// NewProcessingContext creates a context for a single run.
func NewProcessingContext(inputPath, outputPath string, originalSize uint64, level SecurityLevel) *ProcessingContext {
	return &ProcessingContext{
		InputPath:     inputPath,
		OutputPath:    outputPath,
		OriginalSize:  originalSize,
		SecurityLevel: level,
		metadata:      make(map[string]string),
	}
}

// SetMetadata records a summary statistic a stage wants to communicate
// (e.g. "compression_ratio").
func (c *ProcessingContext) SetMetadata(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata reads back a previously set value.
func (c *ProcessingContext) Metadata(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// MetadataSnapshot returns a copy of all accumulated metadata.
func (c *ProcessingContext) MetadataSnapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}
