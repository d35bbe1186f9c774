package policy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// Linear scores each variable as w·x + b over its feature row. Read-only after
// construction, so safe for concurrent use.
type Linear struct {
	weights *mat.VecDense
	bias    float64
}

// NewLinear copies weights into a new model. Panics on empty weights.
func NewLinear(weights []float64, bias float64) *Linear {
	if len(weights) == 0 {
		panic("NewLinear: weights must not be empty")
	}
	return &Linear{
		weights: mat.NewVecDense(len(weights), append([]float64(nil), weights...)),
		bias:    bias,
	}
}

// Features returns the variable-feature width the model expects.
func (l *Linear) Features() int {
	return l.weights.Len()
}

// Score implements sampling.ScoringModel.
func (l *Linear) Score(obs *graph.Observation) ([]float64, error) {
	if obs == nil || obs.ColumnFeatures == nil {
		return nil, fmt.Errorf("linear model: observation has no variable features")
	}
	rows, cols := obs.ColumnFeatures.Dims()
	if cols != l.weights.Len() {
		return nil, fmt.Errorf("linear model: %d variable features, model expects %d", cols, l.weights.Len())
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(obs.ColumnFeatures, l.weights)
	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = out.AtVec(i) + l.bias
	}
	return scores, nil
}
