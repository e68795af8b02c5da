package executor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/adapipe/internal/domain"
	"github.com/FairForge/adapipe/internal/stage"
)

type upperService struct{ reversible bool }

func (s upperService) ProcessChunk(chunk domain.FileChunk, cfg stage.Configuration, _ *domain.ProcessingContext) (domain.FileChunk, error) {
	if cfg.Operation == stage.Reverse {
		return chunk.WithPayload([]byte(strings.ToLower(string(chunk.Data)))), nil
	}
	return chunk.WithPayload([]byte(strings.ToUpper(string(chunk.Data)))), nil
}
func (s upperService) Position() stage.StagePosition { return stage.Any }
func (s upperService) IsReversible() bool             { return s.reversible }
func (s upperService) StageType() stage.StageType     { return stage.StageTypeTransform }

type failingService struct{}

func (failingService) ProcessChunk(domain.FileChunk, stage.Configuration, *domain.ProcessingContext) (domain.FileChunk, error) {
	return domain.FileChunk{}, errors.New("boom")
}
func (failingService) Position() stage.StagePosition { return stage.Any }
func (failingService) IsReversible() bool             { return true }
func (failingService) StageType() stage.StageType     { return stage.StageTypeTransform }

func stages(bool) []stage.PipelineStage {
	return []stage.PipelineStage{
		{Name: "upper", Type: stage.StageTypeTransform, Configuration: stage.Configuration{Algorithm: "upper"}, Enabled: true, Order: 0},
	}
}

func TestExecute_ForwardAppliesStageInOrder(t *testing.T) {
	registry := stage.NewRegistry()
	registry.Register(stage.StageTypeTransform, "upper", upperService{reversible: true})
	exec := New(registry)

	chunk := domain.NewFileChunk(0, 0, []byte("hello"), true)
	out, err := exec.Execute(chunk, stages(true), stage.Forward, nil)

	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(out.Data))
}

func TestExecute_ReverseAppliesInverse(t *testing.T) {
	registry := stage.NewRegistry()
	registry.Register(stage.StageTypeTransform, "upper", upperService{reversible: true})
	exec := New(registry)

	chunk := domain.NewFileChunk(0, 0, []byte("HELLO"), true)
	out, err := exec.Execute(chunk, stages(true), stage.Reverse, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", string(out.Data))
}

func TestExecute_ReverseFailsFastOnNonReversibleStage(t *testing.T) {
	registry := stage.NewRegistry()
	registry.Register(stage.StageTypeTransform, "upper", upperService{reversible: false})
	exec := New(registry)

	chunk := domain.NewFileChunk(0, 0, []byte("HELLO"), true)
	_, err := exec.Execute(chunk, stages(false), stage.Reverse, nil)

	var target *stage.NotReversibleError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "upper", target.StageName)
}

func TestExecute_SkipsDisabledStages(t *testing.T) {
	registry := stage.NewRegistry()
	registry.Register(stage.StageTypeTransform, "upper", upperService{reversible: true})
	exec := New(registry)

	s := stages(true)
	s[0].Enabled = false
	chunk := domain.NewFileChunk(0, 0, []byte("hello"), true)

	out, err := exec.Execute(chunk, s, stage.Forward, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", string(out.Data))
}

func TestExecute_WrapsStageErrorAsFailure(t *testing.T) {
	registry := stage.NewRegistry()
	registry.Register(stage.StageTypeTransform, "fails", failingService{})
	exec := New(registry)

	s := []stage.PipelineStage{{Name: "fails", Type: stage.StageTypeTransform, Configuration: stage.Configuration{Algorithm: "fails"}, Enabled: true}}
	chunk := domain.NewFileChunk(0, 0, []byte("x"), true)

	_, err := exec.Execute(chunk, s, stage.Forward, nil)

	var failure *stage.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "fails", failure.StageName)
}
