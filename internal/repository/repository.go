// Package repository defines the PipelineRepository contract and a
// YAML file-backed reference adapter, FileRepository.
//
// Uses gopkg.in/yaml.v3 for struct-tagged serialization. A real
// database-backed adapter is explicitly out of scope; only the read path
// is consumed by the core.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/adapipe/internal/pipeline"
)

// ErrNotFound is returned when a pipeline name has no matching record.
var ErrNotFound = errors.New("repository: pipeline not found")

// PipelineRepository provides by-name lookup and list/save/delete of
// Pipeline aggregates with archival semantics. The core consumes only
// FindByName during a run; the rest of the interface exists for operator
// tooling built on top of the core.
type PipelineRepository interface {
	FindByName(name string) (*pipeline.Pipeline, error)
	List(includeArchived bool) ([]*pipeline.Pipeline, error)
	Save(p *pipeline.Pipeline) error
	Delete(name string) error
}

// FileRepository persists one YAML document per pipeline under a
// directory.
type FileRepository struct {
	dir string
}

// NewFileRepository returns a repository rooted at dir, creating it if
// absent.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: create %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

func (r *FileRepository) pathFor(name string) string {
	safe := strings.ReplaceAll(name, string(filepath.Separator), "_")
	return filepath.Join(r.dir, safe+".yaml")
}

// FindByName loads and parses the pipeline named name.
func (r *FileRepository) FindByName(name string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(r.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("repository: %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("repository: read %s: %w", name, err)
	}

	var rec pipeline.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("repository: parse %s: %w", name, err)
	}
	return pipeline.FromRecord(rec)
}

// List returns every stored pipeline, optionally excluding archived ones.
func (r *FileRepository) List(includeArchived bool) ([]*pipeline.Pipeline, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("repository: list %s: %w", r.dir, err)
	}

	var out []*pipeline.Pipeline
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("repository: read %s: %w", e.Name(), err)
		}
		var rec pipeline.Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("repository: parse %s: %w", e.Name(), err)
		}
		if rec.Archived && !includeArchived {
			continue
		}
		p, err := pipeline.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Save serializes p to its YAML document, overwriting any prior version.
func (r *FileRepository) Save(p *pipeline.Pipeline) error {
	data, err := yaml.Marshal(p.ToRecord())
	if err != nil {
		return fmt.Errorf("repository: marshal %s: %w", p.Name(), err)
	}
	path := r.pathFor(p.Name())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("repository: write %s: %w", path, err)
	}
	return nil
}

// Delete removes the stored document for name.
func (r *FileRepository) Delete(name string) error {
	err := os.Remove(r.pathFor(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repository: delete %s: %w", name, err)
	}
	return nil
}
