package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

// sampleSummary is the human-readable view of one sample file.
type sampleSummary struct {
	File             string  `yaml:"file"`
	Episode          int64   `yaml:"episode"`
	Instance         string  `yaml:"instance"`
	Seed             uint32  `yaml:"seed"`
	Constraints      int     `yaml:"constraints"`
	Variables        int     `yaml:"variables"`
	Edges            int     `yaml:"edges"`
	VariableFeatures int     `yaml:"variable_features"`
	ChosenAction     int     `yaml:"chosen_action"`
	ActionSet        []int   `yaml:"action_set,flow"`
	ChosenScore      float64 `yaml:"chosen_score"`
	Legal            bool    `yaml:"chosen_action_legal"`
}

func summarizeSample(path string) (*sampleSummary, error) {
	rec, err := store.ReadRecord(path)
	if err != nil {
		return nil, err
	}
	obs, err := rec.Observation.Observation()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s := &sampleSummary{
		File:         path,
		Episode:      rec.Episode,
		Instance:     rec.Instance,
		Seed:         rec.Seed,
		Constraints:  obs.NumConstraints(),
		Variables:    obs.NumVariables(),
		Edges:        obs.NumEdges(),
		ChosenAction: rec.Action,
		ActionSet:    rec.ActionSet,
	}
	if obs.ColumnFeatures != nil {
		_, s.VariableFeatures = obs.ColumnFeatures.Dims()
	}
	if rec.Action >= 0 && rec.Action < len(rec.Scores) {
		s.ChosenScore = rec.Scores[rec.Action]
	}
	for _, a := range rec.ActionSet {
		if a == rec.Action {
			s.Legal = true
			break
		}
	}
	return s, nil
}

// inspectCmd prints a summary of sample files
var inspectCmd = &cobra.Command{
	Use:   "inspect <sample file>...",
	Short: "Decode sample files and print a YAML summary",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		for _, path := range args {
			s, err := summarizeSample(path)
			if err != nil {
				logrus.Fatalf("Failed to read sample: %v", err)
			}
			if err := enc.Encode(s); err != nil {
				logrus.Fatalf("Failed to print summary: %v", err)
			}
		}
	},
}
