package stagecatalog

import (
	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// PassThroughStage implements the PassThrough entry of the stage
// catalogue: the identity transformation, useful as a placeholder slot or
// for testing pipeline wiring without a real transformation.
type PassThroughStage struct{}

// NewPassThroughStage constructs the pass-through stage implementation.
func NewPassThroughStage() *PassThroughStage { return &PassThroughStage{} }

func (s *PassThroughStage) Position() stage.StagePosition { return stage.Any }
func (s *PassThroughStage) IsReversible() bool             { return true }
func (s *PassThroughStage) StageType() stage.StageType     { return stage.StageTypePassThrough }

func (s *PassThroughStage) ProcessChunk(chunk domain.FileChunk, _ stage.Configuration, _ *domain.ProcessingContext) (domain.FileChunk, error) {
	return chunk, nil
}
