package store

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Manifest describes one generation run (all splits) and is written next to
// the configuration copy in the run directory.
type Manifest struct {
	RunID      string          `yaml:"run_id"`
	CreatedAt  string          `yaml:"created_at"`
	Problem    string          `yaml:"problem"`
	Seed       int64           `yaml:"seed"`
	FileCount  int             `yaml:"file_count"`
	Checkpoint string          `yaml:"checkpoint,omitempty"`
	Workers    int             `yaml:"workers"`
	Splits     []SplitManifest `yaml:"splits"`
}

// SplitManifest records what one split produced.
type SplitManifest struct {
	Name      string `yaml:"name"`
	Seed      int64  `yaml:"seed"`
	Instances int    `yaml:"instances"`
	Target    int    `yaml:"target"`
	Written   int    `yaml:"written"`
	Episodes  int64  `yaml:"episodes"`
	Failures  int64  `yaml:"solver_failures"`
	OutputDir string `yaml:"output_dir"`
}

// NewManifest stamps a fresh run id and creation time.
func NewManifest(problem string, seed int64, fileCount, workers int, checkpoint string, now time.Time) *Manifest {
	return &Manifest{
		RunID:      uuid.NewString(),
		CreatedAt:  now.UTC().Format(time.RFC3339),
		Problem:    problem,
		Seed:       seed,
		FileCount:  fileCount,
		Checkpoint: checkpoint,
		Workers:    workers,
	}
}

// WriteYAML marshals v to path.
func WriteYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
