package stagecatalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// TeeStage implements the Tee entry of the stage catalogue: it dumps each
// chunk's payload to a side file named by the "output_path" parameter
// while passing the payload through unchanged, useful for inspecting an
// intermediate stage's output without altering the pipeline's result.
//
// One handle is kept open per distinct output_path for the lifetime of
// the process and guarded by a mutex, since chunks for a single run may
// arrive at this stage from concurrent workers.
type TeeStage struct {
	mu      sync.Mutex
	handles map[string]*os.File
}

// NewTeeStage constructs the tee stage implementation.
func NewTeeStage() *TeeStage {
	return &TeeStage{handles: make(map[string]*os.File)}
}

func (s *TeeStage) Position() stage.StagePosition { return stage.Any }
func (s *TeeStage) IsReversible() bool             { return true }
func (s *TeeStage) StageType() stage.StageType     { return stage.StageTypePassThrough }

func (s *TeeStage) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error) {
	path, ok := cfg.Param("output_path")
	if !ok {
		return domain.FileChunk{}, fmt.Errorf("tee: requires an %q parameter", "output_path")
	}

	f, err := s.handleFor(path)
	if err != nil {
		return domain.FileChunk{}, fmt.Errorf("tee: %w", err)
	}

	s.mu.Lock()
	_, writeErr := f.Write(chunk.Data)
	s.mu.Unlock()
	if writeErr != nil {
		return domain.FileChunk{}, fmt.Errorf("tee: write %s: %w", path, writeErr)
	}

	return chunk, nil
}

func (s *TeeStage) handleFor(path string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.handles[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s.handles[path] = f
	return f, nil
}

// Close flushes and releases every side-file handle opened so far and
// returns the first close error. The scheduler does not call it; the owner
// of the TeeStage does.
func (s *TeeStage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, f := range s.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tee: close %s: %w", path, err)
		}
	}
	s.handles = make(map[string]*os.File)
	return firstErr
}
