package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DatasetConfig represents the dataset.yaml structure.
// All fields must be listed to satisfy KnownFields(true) strict parsing.
type DatasetConfig struct {
	DatasetDir     string  `yaml:"dataset_dir"`      // root holding <problem dir>/<split>/*.mps.gz
	StoreDir       string  `yaml:"store_dir"`        // root for samples/ and train_files/
	NodeRecordProb float64 `yaml:"node_record_prob"` // expert query probability
	TimeLimit      float64 `yaml:"time_limit"`       // per-episode solver budget, seconds
	CheckpointName string  `yaml:"checkpoint_name"`  // file name inside a train_files/<round> directory

	// Optional tuning; zero values select the pipeline defaults.
	QueueCapacity int      `yaml:"queue_capacity,omitempty"`
	ShutdownGrace Duration `yaml:"shutdown_grace,omitempty"`
	ProgressEvery int      `yaml:"progress_every,omitempty"`
}

// Duration is a time.Duration read from YAML as a string such as "45s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// defaultCheckpointName matches the file the training step writes.
const defaultCheckpointName = "best_params.yaml"

// loadDatasetConfig parses dataset.yaml with strict field checking: typos must
// cause errors.
func loadDatasetConfig(path string) (*DatasetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset config: %w", err)
	}
	var cfg DatasetConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing dataset config %s: %w", path, err)
	}
	if cfg.CheckpointName == "" {
		cfg.CheckpointName = defaultCheckpointName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dataset config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks required fields and ranges.
func (c *DatasetConfig) Validate() error {
	if c.DatasetDir == "" {
		return fmt.Errorf("dataset_dir must be set")
	}
	if c.StoreDir == "" {
		return fmt.Errorf("store_dir must be set")
	}
	if c.NodeRecordProb < 0 || c.NodeRecordProb > 1 {
		return fmt.Errorf("node_record_prob must be in [0, 1], got %v", c.NodeRecordProb)
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("time_limit must be positive, got %v", c.TimeLimit)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must be >= 0, got %d", c.QueueCapacity)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must not be negative")
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be >= 0, got %d", c.ProgressEvery)
	}
	return nil
}
