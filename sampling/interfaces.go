package sampling

import (
	"context"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// Model is the solver-side handle an oracle inspects to score the current node.
// Its concrete type belongs to the Environment implementation.
type Model any

// StepResult is what the environment reports at each decision point.
type StepResult struct {
	Model       Model
	Observation *graph.Observation
	ActionSet   []int
	Reward      float64
	Done        bool
}

// Environment drives one branch-and-bound solve. Implementations are owned by a
// single worker and need not be goroutine-safe.
type Environment interface {
	Seed(seed uint32)
	// Reset starts an episode on instance with the given objective limit and
	// wall-clock budget (seconds).
	Reset(ctx context.Context, instance string, objectiveLimit, timeLimit float64) (StepResult, error)
	// Step branches on action. A non-nil error is a solver failure: the episode
	// is over and the environment must accept a later Reset.
	Step(ctx context.Context, action int) (StepResult, error)
	Close() error
}

// ScoreOracle scores every variable of the current node.
type ScoreOracle interface {
	// ResetEpisode clears per-episode state; called before the first Extract.
	ResetEpisode(m Model) error
	Extract(m Model, done bool) ([]float64, error)
}

// ScoringModel maps a graph observation (engineering columns already removed)
// to one score per variable. Implementations must be safe for concurrent use:
// one model instance is shared by every worker.
type ScoringModel interface {
	Score(obs *graph.Observation) ([]float64, error)
}

// Backend bundles the environment and the two oracles bound to it.
type Backend struct {
	Env      Environment
	Expert   ScoreOracle
	Fallback ScoreOracle
}

// BackendFactory builds the backend owned by worker id.
type BackendFactory func(id int) (*Backend, error)
