package sampling

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

// engineeringColumns are variable-feature columns the environment reports for
// bookkeeping but the learned model was never trained on.
var engineeringColumns = []int{13, 14}

// EpisodeRunner runs complete branch-and-bound episodes for one worker and
// emits each episode's Start, Sample*, Done event stream.
type EpisodeRunner struct {
	worker   int
	backend  *Backend
	model    ScoringModel
	results  *Queue[Event]
	errLog   *ErrorLog
	metrics  *Metrics
	failures *atomic.Int64
}

// Run plays order to completion. ctx is the worker stop signal: it suppresses
// recording once cancelled but never interrupts the episode or a solver call.
// A solver step failure ends the episode and is not returned; any other
// failure (reset, oracle, model, staging IO) is returned and is fatal.
func (r *EpisodeRunner) Run(ctx context.Context, order WorkOrder) error {
	log := logrus.WithFields(logrus.Fields{
		"worker":   r.worker,
		"episode":  order.EpisodeID,
		"seed":     order.Seed,
		"instance": order.InstancePath,
	})
	solverCtx := context.WithoutCancel(ctx)
	env := r.backend.Env

	env.Seed(order.Seed)
	state, err := env.Reset(solverCtx, order.InstancePath, order.InitialBound, order.TimeLimit)
	if err != nil {
		return fmt.Errorf("episode %d: resetting environment on %s: %w", order.EpisodeID, order.InstancePath, err)
	}
	log.Debug("processing instance")
	r.emit(newEvent(EventStart, order))
	r.metrics.EpisodesStarted.Inc()

	selector := NewScoringSelector(order.ExpertProbability, r.backend.Expert, r.backend.Fallback)
	if err := selector.ResetEpisode(state.Model, episodeRNG(order.Seed)); err != nil {
		return fmt.Errorf("episode %d: %w", order.EpisodeID, err)
	}

	counter := 0
	for !state.Done {
		scores, isExpert, err := selector.Extract(state.Model, state.Done)
		if err != nil {
			return fmt.Errorf("episode %d: %w", order.EpisodeID, err)
		}
		r.metrics.Decisions.WithLabelValues(sourceName(isExpert)).Inc()

		action, err := argmaxOver(scores, state.ActionSet)
		if err != nil {
			return fmt.Errorf("episode %d: %w", order.EpisodeID, err)
		}
		if !isExpert {
			if action, err = r.modelAction(state); err != nil {
				return fmt.Errorf("episode %d: %w", order.EpisodeID, err)
			}
		}

		if isExpert && ctx.Err() == nil {
			file, err := r.stage(order, state, action, scores, counter)
			if err != nil {
				return err
			}
			ev := newEvent(EventSample, order)
			ev.StagingFile = file
			r.emit(ev)
			r.metrics.SamplesStaged.Inc()
			counter++
		}

		next, err := env.Step(solverCtx, action)
		if err != nil {
			r.metrics.SolverFailures.Inc()
			r.failures.Add(1)
			log.WithError(err).Debug("solver failure, abandoning episode")
			if logErr := r.errLog.Record(order.InstancePath, order.Seed, err); logErr != nil {
				return logErr
			}
			break
		}
		state = next
	}

	log.WithField("samples", counter).Debug("episode done")
	r.emit(newEvent(EventDone, order))
	return nil
}

// modelAction scores the reduced observation with the learned model and picks
// the best legal action.
func (r *EpisodeRunner) modelAction(state StepResult) (int, error) {
	if state.Observation == nil {
		return 0, fmt.Errorf("environment reported no observation")
	}
	reduced, err := state.Observation.WithoutColumns(engineeringColumns...)
	if err != nil {
		return 0, fmt.Errorf("preparing model input: %w", err)
	}
	logits, err := r.model.Score(reduced)
	if err != nil {
		return 0, fmt.Errorf("scoring model: %w", err)
	}
	action, err := argmaxOver(logits, state.ActionSet)
	if err != nil {
		return 0, fmt.Errorf("scoring model: %w", err)
	}
	return action, nil
}

func (r *EpisodeRunner) stage(order WorkOrder, state StepResult, action int, scores []float64, counter int) (string, error) {
	if state.Observation == nil {
		return "", fmt.Errorf("episode %d: environment reported no observation", order.EpisodeID)
	}
	rec := &store.Record{
		Episode:     order.EpisodeID,
		Instance:    order.InstancePath,
		Seed:        order.Seed,
		Observation: store.NewGraphRecord(state.Observation),
		Action:      action,
		ActionSet:   append([]int(nil), state.ActionSet...),
		Scores:      append([]float64(nil), scores...),
	}
	return store.StageRecord(order.OutputDir, rec, counter)
}

// emit never blocks: the results queue is unbounded.
func (r *EpisodeRunner) emit(ev Event) {
	_ = r.results.Put(context.Background(), ev)
}

// argmaxOver returns the action in actionSet with the highest score. Ties go to
// the earliest action in actionSet order.
func argmaxOver(scores []float64, actionSet []int) (int, error) {
	if len(actionSet) == 0 {
		return 0, fmt.Errorf("empty action set")
	}
	best := -1
	for _, a := range actionSet {
		if a < 0 || a >= len(scores) {
			return 0, fmt.Errorf("action %d outside score vector of length %d", a, len(scores))
		}
		if best < 0 || scores[a] > scores[best] {
			best = a
		}
	}
	return best, nil
}
