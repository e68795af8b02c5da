// Package pipeline implements the Pipeline aggregate: a validated, ordered
// sequence of stages with input/output checksum stages auto-inserted and
// binary-boundary ordering enforced at construction time.
//
// The shape — an ordered slice of stages run in sequence by a
// pipeline aggregate — supports validated, user-defined stages plus
// auto-inserted checksum bookends.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

// ErrEmptyName is returned when a Pipeline is constructed with an empty
// name.
var ErrEmptyName = errors.New("pipeline: name must not be empty")

// ErrEmptyStages is returned when a Pipeline is constructed with no
// user-provided stages.
var ErrEmptyStages = errors.New("pipeline: must have at least one stage")

// InvalidStageOrderError is returned when a PreBinary stage is placed after
// the binary boundary (a Compression or Encryption stage).
type InvalidStageOrderError struct {
	StageName string
}

func (e *InvalidStageOrderError) Error() string {
	return fmt.Sprintf("pipeline: stage %q requires PreBinary position but appears after the binary boundary", e.StageName)
}

// IncompatibleStagesError is returned when two adjacent stages violate a
// declared adjacency compatibility rule (e.g. two adjacent identical
// compressions).
type IncompatibleStagesError struct {
	First, Second string
	Reason        string
}

func (e *IncompatibleStagesError) Error() string {
	return fmt.Sprintf("pipeline: stages %q and %q are incompatible: %s", e.First, e.Second, e.Reason)
}

const (
	inputChecksumStageName  = "input_checksum"
	outputChecksumStageName = "output_checksum"
	checksumAlgorithmSHA256 = "sha256"
)

// Pipeline is the validated aggregate: a non-empty, ordered stage list
// bracketed by auto-inserted checksum stages, immutable once constructed.
type Pipeline struct {
	id         domain.PipelineId
	name       string
	stages     []stage.PipelineStage
	chunkSize  domain.ChunkSize
	recordSize uint32
	createdAt  time.Time
	updatedAt  time.Time
	archived   bool
}

// New constructs a Pipeline from a name and a user-provided, unordered
// stage list. It prepends input_checksum and appends output_checksum,
// assigns contiguous 0-based order values, validates binary-boundary
// ordering, and checks adjacency compatibility.
func New(name string, userStages []stage.PipelineStage, chunkSize domain.ChunkSize) (*Pipeline, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(userStages) == 0 {
		return nil, ErrEmptyStages
	}

	id, err := domain.NewPipelineId()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	now := time.Now()
	full := make([]stage.PipelineStage, 0, len(userStages)+2)
	full = append(full, newChecksumBookend(inputChecksumStageName, "input", now))
	for _, s := range userStages {
		full = append(full, s.Clone())
	}
	full = append(full, newChecksumBookend(outputChecksumStageName, "output", now))

	for i := range full {
		full[i].Order = uint32(i)
		if full[i].Id.IsZero() {
			stageID, err := domain.NewStageId()
			if err != nil {
				return nil, fmt.Errorf("pipeline: %w", err)
			}
			full[i].Id = stageID
		}
		if full[i].CreatedAt.IsZero() {
			full[i].CreatedAt = now
		}
		full[i].UpdatedAt = now
	}

	if err := validateBinaryBoundary(full); err != nil {
		return nil, err
	}
	if err := validateAdjacency(full); err != nil {
		return nil, err
	}

	p := &Pipeline{
		id:         id,
		name:       name,
		stages:     full,
		chunkSize:  chunkSize.Clamp(),
		recordSize: computeRecordSize(chunkSize, full),
		createdAt:  now,
		updatedAt:  now,
	}
	return p, nil
}

func newChecksumBookend(name, bookend string, now time.Time) stage.PipelineStage {
	return stage.PipelineStage{
		Name: name,
		Type: stage.StageTypeChecksum,
		Configuration: stage.Configuration{
			Algorithm: checksumAlgorithmSHA256,
			Operation: stage.Forward,
			Parameters: map[string]string{
				"algorithm": checksumAlgorithmSHA256,
				"bookend":   bookend,
			},
		},
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// validateBinaryBoundary enforces invariant 1: no PreBinary stage may
// appear after the binary boundary, where the boundary is marked by the
// first Compression or Encryption stage encountered. Compression and
// Encryption are themselves PreBinary (they need readable data going in)
// but also the stages that mark the boundary, so a Compression stage
// followed by an Encryption stage — the canonical compress-then-encrypt
// sequence — is the boundary re-occurring, not a PreBinary stage violating
// it, and must be allowed. Only a PreBinary stage that does not itself mark
// the boundary (e.g. PII masking) is rejected once the boundary has passed.
func validateBinaryBoundary(stages []stage.PipelineStage) error {
	pastBoundary := false
	for _, s := range stages {
		marksBoundary := s.Type.MarksBinaryBoundary()
		if pastBoundary && stagePosition(s) == stage.PreBinary && !marksBoundary {
			return &InvalidStageOrderError{StageName: s.Name}
		}
		if marksBoundary {
			pastBoundary = true
		}
	}
	return nil
}

// stagePosition derives a stage's position. Checksum/PassThrough default to
// Any. Compression/Encryption are PreBinary and also mark the boundary
// themselves (see validateBinaryBoundary). Transform is PreBinary and does
// not mark the boundary — it is the catalogue's PII-masking stage type,
// which needs readable data and must not appear after compression or
// encryption has already transformed the payload.
func stagePosition(s stage.PipelineStage) stage.StagePosition {
	switch s.Type {
	case stage.StageTypeCompression, stage.StageTypeEncryption, stage.StageTypeTransform:
		return stage.PreBinary
	case stage.StageTypeChecksum, stage.StageTypePassThrough:
		return stage.Any
	default:
		return stage.Any
	}
}

// validateAdjacency rejects two adjacent stages of the same type and
// algorithm (e.g. zstd directly followed by zstd).
func validateAdjacency(stages []stage.PipelineStage) error {
	for i := 1; i < len(stages); i++ {
		prev, cur := stages[i-1], stages[i]
		if prev.Type == cur.Type &&
			prev.Configuration.Algorithm == cur.Configuration.Algorithm &&
			(prev.Type == stage.StageTypeCompression || prev.Type == stage.StageTypeEncryption) {
			return &IncompatibleStagesError{
				First:  prev.Name,
				Second: cur.Name,
				Reason: "adjacent identical " + prev.Type.String() + " stages",
			}
		}
	}
	return nil
}

// computeRecordSize derives the fixed on-disk stride from the configured
// chunk size. It is computed once, here, and carried by value on every
// Pipeline so the codec and the transactional writer can never disagree
// about stride within a single run.
func computeRecordSize(chunkSize domain.ChunkSize, stages []stage.PipelineStage) uint32 {
	const frameOverhead = 12 + 4 // nonce + length prefix
	const growthSlack = 64       // headroom for AEAD tags / compression framing

	size := uint32(chunkSize.Clamp())
	return size + frameOverhead + growthSlack
}

func (p *Pipeline) ID() domain.PipelineId        { return p.id }
func (p *Pipeline) Name() string                 { return p.name }
func (p *Pipeline) Archived() bool               { return p.archived }
func (p *Pipeline) CreatedAt() time.Time         { return p.createdAt }
func (p *Pipeline) UpdatedAt() time.Time         { return p.updatedAt }
func (p *Pipeline) RecordSize() uint32           { return p.recordSize }
func (p *Pipeline) ChunkSize() domain.ChunkSize  { return p.chunkSize }

// Stages returns a defensive copy of the ordered stage list.
func (p *Pipeline) Stages() []stage.PipelineStage {
	out := make([]stage.PipelineStage, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Clone()
	}
	return out
}

// IsFullyReversible reports whether every stage in the pipeline can run in
// Reverse, using the caller-supplied reversibility predicate; the second
// result names the first enabled stage that fails it.
func (p *Pipeline) IsFullyReversible(reversible func(stage.PipelineStage) bool) (bool, string) {
	for _, s := range p.stages {
		if !s.Enabled {
			continue
		}
		if !reversible(s) {
			return false, s.Name
		}
	}
	return true, ""
}

// WithConfiguration returns a new Pipeline value with the named stage's
// Configuration replaced. Per the immutability discipline recorded in
// DESIGN.md, this never mutates the receiver; it re-validates the full
// sequence before returning.
func (p *Pipeline) WithConfiguration(stageName string, cfg stage.Configuration) (*Pipeline, error) {
	next := p.clone()
	found := false
	for i := range next.stages {
		if next.stages[i].Name == stageName {
			next.stages[i].Configuration = cfg
			next.stages[i].UpdatedAt = time.Now()
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("pipeline: no stage named %q", stageName)
	}
	if err := validateBinaryBoundary(next.stages); err != nil {
		return nil, err
	}
	if err := validateAdjacency(next.stages); err != nil {
		return nil, err
	}
	next.updatedAt = time.Now()
	return next, nil
}

// WithEnabled returns a new Pipeline value with the named stage's Enabled
// flag set.
func (p *Pipeline) WithEnabled(stageName string, enabled bool) (*Pipeline, error) {
	next := p.clone()
	found := false
	for i := range next.stages {
		if next.stages[i].Name == stageName {
			next.stages[i].Enabled = enabled
			next.stages[i].UpdatedAt = time.Now()
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("pipeline: no stage named %q", stageName)
	}
	next.updatedAt = time.Now()
	return next, nil
}

// Archive returns a new Pipeline value with archived=true.
func (p *Pipeline) Archive() *Pipeline {
	next := p.clone()
	next.archived = true
	next.updatedAt = time.Now()
	return next
}

func (p *Pipeline) clone() *Pipeline {
	stagesCopy := make([]stage.PipelineStage, len(p.stages))
	for i, s := range p.stages {
		stagesCopy[i] = s.Clone()
	}
	return &Pipeline{
		id:         p.id,
		name:       p.name,
		stages:     stagesCopy,
		chunkSize:  p.chunkSize,
		recordSize: p.recordSize,
		createdAt:  p.createdAt,
		updatedAt:  p.updatedAt,
		archived:   p.archived,
	}
}
