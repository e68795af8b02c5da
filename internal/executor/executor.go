// Package executor implements the stage executor (C8): per-chunk dispatch
// to the StageService registered for a stage's (type, algorithm), applying
// Forward or Reverse and threading the run's ProcessingContext.
//
// Execute's Forward/Reverse symmetry mirrors a chunker→compressor→encryptor
// forward pass with the reverse order applied on reconstruction.
package executor

import (
	"fmt"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// Executor walks a pipeline's stage list against a chunk, dispatching each
// enabled stage to its registered StageService. It has no goroutines or
// channels of its own — it is a plain synchronous function call invoked
// from inside a scheduler worker goroutine.
type Executor struct {
	registry *stage.Registry
}

// New constructs an Executor bound to a stage registry built at startup.
func New(registry *stage.Registry) *Executor {
	return &Executor{registry: registry}
}

// CheckReversible reports whether every enabled stage in stages can run in
// Reverse, looking each one up in the registry. It performs no chunk
// processing, so a scheduler can call it before reading any input and
// satisfy the "fail fast before any chunk is read" contract for Reverse
// runs.
func (e *Executor) CheckReversible(stages []stage.PipelineStage) error {
	for _, s := range stages {
		if !s.Enabled {
			continue
		}
		svc, err := e.registry.Lookup(s.Type, s.Configuration.Algorithm)
		if err != nil {
			return fmt.Errorf("executor: %w", err)
		}
		if !svc.IsReversible() {
			return &stage.NotReversibleError{StageName: s.Name}
		}
	}
	return nil
}

// Execute runs chunk through stages in the given operation's order.
// Forward iterates ascending by Order; Reverse iterates descending and
// fails fast with a *stage.NotReversibleError before processing any stage
// if one of them cannot run in reverse. Disabled stages are skipped.
func (e *Executor) Execute(chunk domain.FileChunk, stages []stage.PipelineStage, op stage.Operation, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	ordered := orderedStages(stages, op)

	if op == stage.Reverse {
		for _, s := range ordered {
			if !s.Enabled {
				continue
			}
			svc, err := e.registry.Lookup(s.Type, s.Configuration.Algorithm)
			if err != nil {
				return domain.FileChunk{}, fmt.Errorf("executor: %w", err)
			}
			if !svc.IsReversible() {
				return domain.FileChunk{}, &stage.NotReversibleError{StageName: s.Name}
			}
		}
	}

	current := chunk
	for _, s := range ordered {
		if !s.Enabled {
			continue
		}

		svc, err := e.registry.Lookup(s.Type, s.Configuration.Algorithm)
		if err != nil {
			return domain.FileChunk{}, fmt.Errorf("executor: %w", err)
		}

		cfg := s.Configuration
		cfg.Operation = op

		next, err := svc.ProcessChunk(current, cfg, ctx)
		if err != nil {
			return domain.FileChunk{}, &stage.Failure{StageName: s.Name, Inner: err}
		}
		current = next
	}
	return current, nil
}

func orderedStages(stages []stage.PipelineStage, op stage.Operation) []stage.PipelineStage {
	out := make([]stage.PipelineStage, len(stages))
	copy(out, stages)
	// stages is already sorted ascending by Order (the Pipeline aggregate
	// guarantees contiguous 0-based order); Reverse simply walks it back
	// to front.
	if op == stage.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
