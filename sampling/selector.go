package sampling

import (
	"fmt"
	"math/rand"
)

// ScoringSelector chooses, independently at every decision point, whether the
// expert or the fallback oracle scores the node. The expert is chosen with
// probability expertProbability.
//
// Thread-safety: NOT thread-safe; each worker owns its selector.
type ScoringSelector struct {
	expertProbability float64
	expert            ScoreOracle
	fallback          ScoreOracle
	rng               *rand.Rand
}

// NewScoringSelector creates a selector. Panics if p is outside [0, 1] or an oracle is nil.
func NewScoringSelector(p float64, expert, fallback ScoreOracle) *ScoringSelector {
	if p < 0 || p > 1 {
		panic(fmt.Sprintf("NewScoringSelector: expert probability %v outside [0, 1]", p))
	}
	if expert == nil || fallback == nil {
		panic("NewScoringSelector: oracles must not be nil")
	}
	return &ScoringSelector{expertProbability: p, expert: expert, fallback: fallback}
}

// ResetEpisode resets both oracles and installs the coin-flip stream for the episode.
func (s *ScoringSelector) ResetEpisode(m Model, rng *rand.Rand) error {
	s.rng = rng
	if err := s.expert.ResetEpisode(m); err != nil {
		return fmt.Errorf("resetting expert oracle: %w", err)
	}
	if err := s.fallback.ResetEpisode(m); err != nil {
		return fmt.Errorf("resetting fallback oracle: %w", err)
	}
	return nil
}

// Extract draws one Bernoulli outcome and returns the chosen oracle's scores and
// whether they came from the expert. Oracle errors are returned unchanged in meaning.
func (s *ScoringSelector) Extract(m Model, done bool) ([]float64, bool, error) {
	if s.rng == nil {
		return nil, false, fmt.Errorf("scoring selector used before ResetEpisode")
	}
	// Float64 is in [0, 1): p=1 always picks the expert, p=0 never does.
	if s.rng.Float64() < s.expertProbability {
		scores, err := s.expert.Extract(m, done)
		if err != nil {
			return nil, true, fmt.Errorf("expert oracle: %w", err)
		}
		return scores, true, nil
	}
	scores, err := s.fallback.Extract(m, done)
	if err != nil {
		return nil, false, fmt.Errorf("fallback oracle: %w", err)
	}
	return scores, false, nil
}
