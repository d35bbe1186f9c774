// Package bridge connects the sampling pipeline to an external solver helper
// process. Each worker owns one helper; requests and responses are single-line
// JSON objects over the helper's stdin and stdout.
package bridge

import (
	"fmt"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// Request ops.
const (
	OpReset  = "reset"
	OpStep   = "step"
	OpScores = "scores"
)

// Oracle kinds and phases for OpScores.
const (
	KindExpert   = "expert"
	KindFallback = "fallback"

	PhaseReset   = "reset"
	PhaseExtract = "extract"
)

// Request is one line written to the helper. Seed and ObjectiveLimit are
// always sent so that zero values reach the helper; Action is set on step only.
type Request struct {
	Op             string  `json:"op"`
	Seed           uint32  `json:"seed"`
	Instance       string  `json:"instance,omitempty"`
	ObjectiveLimit float64 `json:"objective_limit"`
	TimeLimit      float64 `json:"time_limit,omitempty"`
	Action         *int    `json:"action,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	Phase          string  `json:"phase,omitempty"`
	Done           bool    `json:"done,omitempty"`
}

// Observation is the wire form of graph.Observation: dense row-major feature
// lists plus the sparse edge list.
type Observation struct {
	RowFeatures    [][]float64 `json:"row_features"`
	EdgeIndex      [2][]int    `json:"edge_index"`
	EdgeValues     []float64   `json:"edge_values"`
	ColumnFeatures [][]float64 `json:"column_features"`
}

// Response is one line read back from the helper. Error is set when the
// request failed on the helper side.
type Response struct {
	Observation *Observation `json:"observation,omitempty"`
	ActionSet   []int        `json:"action_set,omitempty"`
	Reward      float64      `json:"reward"`
	Done        bool         `json:"done"`
	Scores      []float64    `json:"scores,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ToGraph converts the wire observation and validates its edges.
func (o *Observation) ToGraph() (*graph.Observation, error) {
	rows, err := graph.FromRows(o.RowFeatures)
	if err != nil {
		return nil, fmt.Errorf("row features: %w", err)
	}
	cols, err := graph.FromRows(o.ColumnFeatures)
	if err != nil {
		return nil, fmt.Errorf("column features: %w", err)
	}
	obs := &graph.Observation{
		RowFeatures:    rows,
		EdgeIndex:      o.EdgeIndex,
		EdgeValues:     o.EdgeValues,
		ColumnFeatures: cols,
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return obs, nil
}

// FromGraph converts a graph observation to its wire form.
func FromGraph(obs *graph.Observation) *Observation {
	return &Observation{
		RowFeatures:    graph.Rows(obs.RowFeatures),
		EdgeIndex:      obs.EdgeIndex,
		EdgeValues:     obs.EdgeValues,
		ColumnFeatures: graph.Rows(obs.ColumnFeatures),
	}
}
