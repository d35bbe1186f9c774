package policy

import (
	"math/rand"
	"sync"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// Random draws an independent uniform score per variable. The stream is shared
// by every worker, so draws are serialised.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom wraps rng, which must not be used elsewhere afterwards.
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: rng}
}

// Score implements sampling.ScoringModel.
func (r *Random) Score(obs *graph.Observation) ([]float64, error) {
	n := obs.NumVariables()
	scores := make([]float64, n)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range scores {
		scores[i] = r.rng.Float64()
	}
	return scores, nil
}
