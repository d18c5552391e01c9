// Package jobspec parses the YAML job description file that `cwljob submit`
// consumes and applies it to a job: workflow upload, scalar inputs, file
// inputs with optional secondary files.
package jobspec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"cwlclient/pkg/client"
)

// Spec describes one job.
type Spec struct {
	Name     string               `yaml:"name"`     // optional; a generated name is used when empty
	Workflow string               `yaml:"workflow"` // path to the workflow document, relative to the spec file
	Inputs   map[string]any       `yaml:"inputs"`   // scalar workflow inputs
	Files    map[string]FileInput `yaml:"files"`    // file workflow inputs
}

// FileInput binds one workflow input to a file, a list of files, or a file
// with secondary files. Exactly one of Path and Paths must be set; Secondary
// requires Path.
type FileInput struct {
	Path      string   `yaml:"path,omitempty"`
	Paths     []string `yaml:"paths,omitempty"`
	Secondary []string `yaml:"secondary,omitempty"`
}

// Load reads and validates a spec file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job spec %s: %w", path, err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing job spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("job spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the spec's structure.
func (s *Spec) Validate() error {
	if s.Workflow == "" {
		return fmt.Errorf("workflow is required")
	}
	for name, f := range s.Files {
		switch {
		case f.Path == "" && len(f.Paths) == 0:
			return fmt.Errorf("file input %q needs path or paths", name)
		case f.Path != "" && len(f.Paths) > 0:
			return fmt.Errorf("file input %q has both path and paths", name)
		case len(f.Secondary) > 0 && f.Path == "":
			return fmt.Errorf("file input %q has secondary files but no primary path", name)
		}
	}
	return nil
}

// Apply uploads the workflow and all inputs to the job. Relative paths are
// resolved against baseDir (typically the spec file's directory). Inputs are
// applied in name order so uploads are deterministic.
func (s *Spec) Apply(ctx context.Context, job *client.Job, baseDir string) error {
	if err := job.SetWorkflow(ctx, client.PathSource(resolve(baseDir, s.Workflow))); err != nil {
		return err
	}

	for _, name := range sortedKeys(s.Files) {
		f := s.Files[name]
		if f.Path != "" {
			if err := job.AddInputFile(ctx, name, client.PathSource(resolve(baseDir, f.Path))); err != nil {
				return err
			}
			for _, sec := range f.Secondary {
				if err := job.AddSecondaryFile(ctx, name, client.PathSource(resolve(baseDir, sec))); err != nil {
					return err
				}
			}
			continue
		}

		sources := make([]client.FileSource, 0, len(f.Paths))
		for _, p := range f.Paths {
			sources = append(sources, client.PathSource(resolve(baseDir, p)))
		}
		if err := job.AddInputFile(ctx, name, sources...); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(s.Inputs) {
		job.SetInput(name, s.Inputs[name])
	}
	return nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
