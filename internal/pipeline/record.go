package pipeline

import (
	"fmt"
	"time"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// StageRecord is the YAML-serializable projection of a PipelineStage,
// tagged with yaml:"..." field names.
type StageRecord struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	Type               string            `yaml:"type"`
	Algorithm          string            `yaml:"algorithm"`
	Operation          string            `yaml:"operation"`
	Parameters         map[string]string `yaml:"parameters"`
	ParallelProcessing bool              `yaml:"parallel_processing"`
	ChunkSizeOverride  *uint32           `yaml:"chunk_size_override,omitempty"`
	Enabled            bool              `yaml:"enabled"`
	Order              uint32            `yaml:"order"`
	CreatedAt          time.Time         `yaml:"created_at"`
	UpdatedAt          time.Time         `yaml:"updated_at"`
}

// Record is the YAML-serializable projection of a Pipeline, the unit a
// repository adapter persists. It includes the auto-inserted checksum
// bookends; a FileRepository round-trips Record through FromRecord
// rather than through New, since the bookends must not be inserted twice.
type Record struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	Stages     []StageRecord `yaml:"stages"`
	ChunkSize  uint32        `yaml:"chunk_size"`
	RecordSize uint32        `yaml:"record_size"`
	CreatedAt  time.Time     `yaml:"created_at"`
	UpdatedAt  time.Time     `yaml:"updated_at"`
	Archived   bool          `yaml:"archived"`
}

// ToRecord projects the pipeline into its serializable form.
func (p *Pipeline) ToRecord() Record {
	stages := make([]StageRecord, len(p.stages))
	for i, s := range p.stages {
		stages[i] = StageRecord{
			ID:                 s.Id.String(),
			Name:               s.Name,
			Type:               s.Type.String(),
			Algorithm:          s.Configuration.Algorithm,
			Operation:          s.Configuration.Operation.String(),
			Parameters:         s.Configuration.Parameters,
			ParallelProcessing: s.Configuration.ParallelProcessing,
			ChunkSizeOverride:  s.Configuration.ChunkSizeOverride,
			Enabled:            s.Enabled,
			Order:              s.Order,
			CreatedAt:          s.CreatedAt,
			UpdatedAt:          s.UpdatedAt,
		}
	}
	return Record{
		ID:         p.id.String(),
		Name:       p.name,
		Stages:     stages,
		ChunkSize:  uint32(p.chunkSize),
		RecordSize: p.recordSize,
		CreatedAt:  p.createdAt,
		UpdatedAt:  p.updatedAt,
		Archived:   p.archived,
	}
}

// FromRecord reconstructs a Pipeline from a previously-persisted Record
// without re-running bookend insertion or re-validating from scratch: a
// persisted record already went through New once and its invariants were
// checked then. This is the repository's load path.
func FromRecord(r Record) (*Pipeline, error) {
	id, err := domain.ParsePipelineId(r.ID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	stages := make([]stage.PipelineStage, len(r.Stages))
	for i, sr := range r.Stages {
		stageID, err := domain.ParseStageId(sr.ID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: stage %q: %w", sr.Name, err)
		}
		stages[i] = stage.PipelineStage{
			Id:   stageID,
			Name: sr.Name,
			Type: parseStageType(sr.Type),
			Configuration: stage.Configuration{
				Algorithm:          sr.Algorithm,
				Operation:          parseOperation(sr.Operation),
				Parameters:         sr.Parameters,
				ParallelProcessing: sr.ParallelProcessing,
				ChunkSizeOverride:  sr.ChunkSizeOverride,
			},
			Enabled:   sr.Enabled,
			Order:     sr.Order,
			CreatedAt: sr.CreatedAt,
			UpdatedAt: sr.UpdatedAt,
		}
	}

	return &Pipeline{
		id:         id,
		name:       r.Name,
		stages:     stages,
		chunkSize:  domain.ChunkSize(r.ChunkSize),
		recordSize: r.RecordSize,
		createdAt:  r.CreatedAt,
		updatedAt:  r.UpdatedAt,
		archived:   r.Archived,
	}, nil
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

func parseOperation(s string) stage.Operation {
	if s == "reverse" {
		return stage.Reverse
	}
	return stage.Forward
}
