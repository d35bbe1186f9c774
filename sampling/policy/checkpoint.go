// Package policy provides the learned scoring models used on non-expert
// decisions: a linear model restored from a YAML checkpoint and a seeded
// random model for the first dagger round.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bnb-imitation/samplegen/sampling"
)

// KindLinear is the only checkpoint kind understood today.
const KindLinear = "linear"

// Checkpoint is the serialized form of a trained scoring model.
type Checkpoint struct {
	Kind    string    `yaml:"kind"`
	Weights []float64 `yaml:"weights"`
	Bias    float64   `yaml:"bias"`
}

// LoadCheckpoint reads and strictly parses a YAML checkpoint file.
// Unrecognized keys are rejected.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var ckpt Checkpoint
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	if err := ckpt.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return &ckpt, nil
}

// Validate checks the kind and that every parameter is finite.
func (c *Checkpoint) Validate() error {
	if c.Kind != KindLinear {
		return fmt.Errorf("unknown model kind %q", c.Kind)
	}
	if len(c.Weights) == 0 {
		return fmt.Errorf("linear model has no weights")
	}
	for i, w := range c.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is not finite: %v", i, w)
		}
	}
	if math.IsNaN(c.Bias) || math.IsInf(c.Bias, 0) {
		return fmt.Errorf("bias is not finite: %v", c.Bias)
	}
	return nil
}

// Load returns the model stored at path, or a random model seeded from rng
// when path is empty or names no file.
func Load(path string, rng *rand.Rand) (sampling.ScoringModel, error) {
	if path == "" {
		logrus.Info("no checkpoint configured, using random scoring model")
		return NewRandom(rng), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logrus.Infof("checkpoint %s not found, using random scoring model", path)
		return NewRandom(rng), nil
	}
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	logrus.Infof("loaded %s scoring model with %d weights from %s", ckpt.Kind, len(ckpt.Weights), path)
	return NewLinear(ckpt.Weights, ckpt.Bias), nil
}
