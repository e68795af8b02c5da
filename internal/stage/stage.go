// Package stage defines the StageService capability contract that every
// concrete transformation (compression, encryption, checksum, masking, tee,
// pass-through) implements, plus the portable configuration map those
// implementations are rebuilt from.
package stage

import (
	"fmt"
	"time"

	"github.com/FairForge/adapipe/internal/domain"
)

// StagePosition classifies where in the pipeline a stage is permitted to
// run relative to the binary boundary.
type StagePosition int

const (
	// PreBinary stages need readable (pre-compression/pre-encryption) data.
	PreBinary StagePosition = iota
	// PostBinary stages run only after the binary boundary.
	PostBinary
	// Any stage may appear on either side of the boundary.
	Any
)

func (p StagePosition) String() string {
	switch p {
	case PreBinary:
		return "pre_binary"
	case PostBinary:
		return "post_binary"
	case Any:
		return "any"
	default:
		return "unknown"
	}
}

// StageType tags a stage's semantic role. Compression and Encryption are the
// two types that mark the binary boundary (see internal/pipeline).
type StageType int

const (
	StageTypeCompression StageType = iota
	StageTypeEncryption
	StageTypeChecksum
	StageTypeTransform
	StageTypePassThrough
)

func (t StageType) String() string {
	switch t {
	case StageTypeCompression:
		return "compression"
	case StageTypeEncryption:
		return "encryption"
	case StageTypeChecksum:
		return "checksum"
	case StageTypeTransform:
		return "transform"
	case StageTypePassThrough:
		return "pass_through"
	default:
		return "unknown"
	}
}

// MarksBinaryBoundary reports whether a stage of this type marks the point
// past which data is no longer in its original form.
func (t StageType) MarksBinaryBoundary() bool {
	return t == StageTypeCompression || t == StageTypeEncryption
}

// Operation selects which direction a stage runs.
type Operation int

const (
	Forward Operation = iota
	Reverse
)

func (o Operation) String() string {
	if o == Reverse {
		return "reverse"
	}
	return "forward"
}

// Configuration is the single serializable surface for all stage-specific
// settings. Parameters is a flat string map so it round-trips through the
// container manifest without a generic-type explosion in the stage
// registry; each concrete stage recovers a typed config from it via
// FromParameters.
type Configuration struct {
	Algorithm         string
	Operation         Operation
	Parameters        map[string]string
	ParallelProcessing bool
	ChunkSizeOverride  *uint32
}

// Param reads a string parameter, returning ok=false if absent.
func (c Configuration) Param(key string) (string, bool) {
	if c.Parameters == nil {
		return "", false
	}
	v, ok := c.Parameters[key]
	return v, ok
}

// ParamOrDefault reads a string parameter, returning def if absent.
func (c Configuration) ParamOrDefault(key, def string) string {
	if v, ok := c.Param(key); ok {
		return v
	}
	return def
}

// FromParameters is implemented by each stage's typed configuration struct
// to rebuild itself from the portable Configuration.Parameters map.
type FromParameters interface {
	FromParameters(params map[string]string) error
}

// StageService is the capability set every concrete stage implements. It is
// intentionally small and synchronous: the executor dispatches to it from
// inside a worker goroutine, never touching a channel or context itself.
type StageService interface {
	// ProcessChunk transforms chunk according to configuration, optionally
	// recording summary metadata on ctx.
	ProcessChunk(chunk domain.FileChunk, configuration Configuration, ctx *domain.ProcessingContext) (domain.FileChunk, error)
	Position() StagePosition
	IsReversible() bool
	StageType() StageType
}

// Failure wraps an error raised by a StageService with the stage name that
// produced it, per the StageFailure error kind in the error handling
// design.
type Failure struct {
	StageName string
	Inner     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("stage %q failed: %v", f.StageName, f.Inner)
}

func (f *Failure) Unwrap() error { return f.Inner }

// NotReversibleError is returned when Reverse is requested on a stage whose
// IsReversible() is false.
type NotReversibleError struct {
	StageName string
}

func (e *NotReversibleError) Error() string {
	return fmt.Sprintf("stage %q is not reversible", e.StageName)
}

// PipelineStage is a single configured position in a Pipeline's stage list.
type PipelineStage struct {
	Id            domain.StageId
	Name          string
	Type          StageType
	Configuration Configuration
	Enabled       bool
	Order         uint32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep-enough copy suitable for the immutable-update
// discipline in internal/pipeline: Parameters is copied so later mutation
// of the original does not alias into the clone.
func (s PipelineStage) Clone() PipelineStage {
	out := s
	if s.Configuration.Parameters != nil {
		out.Configuration.Parameters = make(map[string]string, len(s.Configuration.Parameters))
		for k, v := range s.Configuration.Parameters {
			out.Configuration.Parameters[k] = v
		}
	}
	return out
}
