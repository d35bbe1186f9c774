package bridge

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bnb-imitation/samplegen/sampling"
)

// SolverError is a failure the helper reported for a step: the episode is
// over but the helper accepts a new reset.
type SolverError struct {
	Message string
}

func (e *SolverError) Error() string {
	return "solver: " + e.Message
}

// caller is the part of Conn the environment and oracles need.
type caller interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// Env is a sampling.Environment backed by a helper. The Model it reports is
// the connection itself, which the paired oracles check.
type Env struct {
	conn   caller
	closer func() error
	seed   uint32
}

// NewEnv wraps conn. closer, if non-nil, runs on Close.
func NewEnv(conn caller, closer func() error) *Env {
	return &Env{conn: conn, closer: closer}
}

// Seed sets the seed sent with the next Reset.
func (e *Env) Seed(seed uint32) {
	e.seed = seed
}

// Reset starts an episode. Any helper-side error is fatal.
func (e *Env) Reset(ctx context.Context, instance string, objectiveLimit, timeLimit float64) (sampling.StepResult, error) {
	resp, err := e.conn.Call(ctx, Request{
		Op:             OpReset,
		Seed:           e.seed,
		Instance:       instance,
		ObjectiveLimit: objectiveLimit,
		TimeLimit:      timeLimit,
	})
	if err != nil {
		return sampling.StepResult{}, err
	}
	if resp.Error != "" {
		return sampling.StepResult{}, fmt.Errorf("reset %s: %s", instance, resp.Error)
	}
	return e.result(resp)
}

// Step branches on action. A helper-side error comes back as *SolverError.
func (e *Env) Step(ctx context.Context, action int) (sampling.StepResult, error) {
	resp, err := e.conn.Call(ctx, Request{Op: OpStep, Action: &action})
	if err != nil {
		return sampling.StepResult{}, err
	}
	if resp.Error != "" {
		return sampling.StepResult{}, &SolverError{Message: resp.Error}
	}
	return e.result(resp)
}

func (e *Env) result(resp Response) (sampling.StepResult, error) {
	res := sampling.StepResult{
		Model:     e.conn,
		ActionSet: resp.ActionSet,
		Reward:    resp.Reward,
		Done:      resp.Done,
	}
	if resp.Done {
		return res, nil
	}
	if resp.Observation == nil {
		return sampling.StepResult{}, fmt.Errorf("helper reported a decision point without an observation")
	}
	obs, err := resp.Observation.ToGraph()
	if err != nil {
		return sampling.StepResult{}, fmt.Errorf("helper observation: %w", err)
	}
	res.Observation = obs
	return res, nil
}

// Close releases the helper.
func (e *Env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// Oracle is a sampling.ScoreOracle answered by the helper's expert or
// fallback scorer.
type Oracle struct {
	conn caller
	kind string
}

// NewOracle returns the oracle of the given kind (KindExpert or KindFallback).
func NewOracle(conn caller, kind string) *Oracle {
	return &Oracle{conn: conn, kind: kind}
}

// ResetEpisode implements sampling.ScoreOracle.
func (o *Oracle) ResetEpisode(m sampling.Model) error {
	if err := o.check(m); err != nil {
		return err
	}
	resp, err := o.conn.Call(context.Background(), Request{Op: OpScores, Kind: o.kind, Phase: PhaseReset})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s oracle reset: %s", o.kind, resp.Error)
	}
	return nil
}

// Extract implements sampling.ScoreOracle.
func (o *Oracle) Extract(m sampling.Model, done bool) ([]float64, error) {
	if err := o.check(m); err != nil {
		return nil, err
	}
	resp, err := o.conn.Call(context.Background(), Request{Op: OpScores, Kind: o.kind, Phase: PhaseExtract, Done: done})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s oracle: %s", o.kind, resp.Error)
	}
	return resp.Scores, nil
}

func (o *Oracle) check(m sampling.Model) error {
	if m != sampling.Model(o.conn) {
		return fmt.Errorf("%s oracle: state belongs to a different environment", o.kind)
	}
	return nil
}

// NewFactory returns a BackendFactory starting one helper per worker from
// argv. Helpers are killed when ctx is cancelled.
func NewFactory(ctx context.Context, argv []string) sampling.BackendFactory {
	return func(id int) (*sampling.Backend, error) {
		proc, err := StartProcess(ctx, argv, logrus.WithField("worker", id))
		if err != nil {
			return nil, err
		}
		return &sampling.Backend{
			Env:      NewEnv(proc.Conn, proc.Close),
			Expert:   NewOracle(proc.Conn, KindExpert),
			Fallback: NewOracle(proc.Conn, KindFallback),
		}, nil
	}
}
