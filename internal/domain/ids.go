// Package domain holds the value primitives shared by every other package:
// chunk identity, pipeline/stage identity, sizing heuristics, and key
// material. Nothing in this package touches I/O, channels, or goroutines.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ChunkId is a dense, 0-based, strictly increasing sequence number assigned
// by the file reader. Unlike StageId/PipelineId/SessionId it is positional,
// not creation-time-ordered: the writer uses it as the sole key for placing
// a chunk's record in the container.
type ChunkId uint64

// StageId, PipelineId and SessionId are time-ordered, lexicographically
// sortable 128-bit identifiers (UUIDv7). They identify aggregates and runs,
// never chunks.
type (
	StageId    uuid.UUID
	PipelineId uuid.UUID
	SessionId  uuid.UUID
)

// NewStageId mints a fresh time-ordered stage identifier.
func NewStageId() (StageId, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return StageId{}, fmt.Errorf("domain: generate stage id: %w", err)
	}
	return StageId(id), nil
}

// NewPipelineId mints a fresh time-ordered pipeline identifier.
func NewPipelineId() (PipelineId, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return PipelineId{}, fmt.Errorf("domain: generate pipeline id: %w", err)
	}
	return PipelineId(id), nil
}

// NewSessionId mints a fresh time-ordered session identifier.
func NewSessionId() (SessionId, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return SessionId{}, fmt.Errorf("domain: generate session id: %w", err)
	}
	return SessionId(id), nil
}

func (s StageId) String() string    { return uuid.UUID(s).String() }
func (p PipelineId) String() string { return uuid.UUID(p).String() }
func (s SessionId) String() string  { return uuid.UUID(s).String() }

// IsZero reports whether the id was never assigned.
func (s StageId) IsZero() bool    { return uuid.UUID(s) == uuid.Nil }
func (p PipelineId) IsZero() bool { return uuid.UUID(p) == uuid.Nil }
func (s SessionId) IsZero() bool  { return uuid.UUID(s) == uuid.Nil }

// ParseStageId parses a canonical UUID string into a StageId.
func ParseStageId(s string) (StageId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return StageId{}, fmt.Errorf("domain: parse stage id %q: %w", s, err)
	}
	return StageId(id), nil
}

// ParsePipelineId parses a canonical UUID string into a PipelineId.
func ParsePipelineId(s string) (PipelineId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PipelineId{}, fmt.Errorf("domain: parse pipeline id %q: %w", s, err)
	}
	return PipelineId(id), nil
}
