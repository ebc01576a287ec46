package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ignite/outreach-control/internal/domain"
)

// Registry is the experiments.json file: {"experiments": [ExperimentConfig...]}.
type Registry struct {
	path        string
	experiments map[string]domain.ExperimentConfig
}

type registryFile struct {
	Experiments []domain.ExperimentConfig `json:"experiments"`
}

// OpenRegistry loads path, or starts empty if it doesn't exist yet.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, experiments: make(map[string]domain.ExperimentConfig)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("experiment: read %s: %w", path, err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("experiment: parse %s: %w", path, err)
	}
	for _, e := range file.Experiments {
		r.experiments[e.ExperimentID] = e
	}
	return r, nil
}

// Get returns the experiment by ID.
func (r *Registry) Get(id string) (domain.ExperimentConfig, bool) {
	e, ok := r.experiments[id]
	return e, ok
}

// All returns every registered experiment.
func (r *Registry) All() []domain.ExperimentConfig {
	out := make([]domain.ExperimentConfig, 0, len(r.experiments))
	for _, e := range r.experiments {
		out = append(out, e)
	}
	return out
}

// Put inserts or updates an experiment and persists the whole registry.
func (r *Registry) Put(cfg domain.ExperimentConfig) error {
	r.experiments[cfg.ExperimentID] = cfg
	return r.save()
}

func (r *Registry) save() error {
	file := registryFile{Experiments: r.All()}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("experiment: marshal: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("experiment: write %s: %w", r.path, err)
	}
	return nil
}
