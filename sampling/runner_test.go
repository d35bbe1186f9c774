package sampling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

type runnerFixture struct {
	runner   *EpisodeRunner
	env      *fakeEnv
	model    *fakeModel
	results  *Queue[Event]
	failures *atomic.Int64
	metrics  *Metrics
	dir      string
}

func newRunnerFixture(t *testing.T, scripts map[string]fakeScript) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	f := &runnerFixture{
		env:      newFakeEnv(scripts),
		model:    &fakeModel{},
		results:  NewQueue[Event](0),
		failures: &atomic.Int64{},
		metrics:  NewMetrics(nil, "test"),
		dir:      dir,
	}
	f.runner = &EpisodeRunner{
		backend:  &Backend{Env: f.env, Expert: &fakeOracle{expert: true}, Fallback: &fakeOracle{}},
		model:    f.model,
		results:  f.results,
		errLog:   NewErrorLog(filepath.Join(dir, "error_log.txt")),
		metrics:  f.metrics,
		failures: f.failures,
	}
	return f
}

func (f *runnerFixture) order(episode int64, p float64) WorkOrder {
	return WorkOrder{
		EpisodeID:         episode,
		InstancePath:      "a.mps.gz",
		InitialBound:      10,
		Seed:              uint32(1000 + episode),
		ExpertProbability: p,
		TimeLimit:         60,
		OutputDir:         f.dir,
	}
}

func TestEpisodeRunner_ExpertEpisode_EmitsStartSamplesDone(t *testing.T) {
	// GIVEN an instance with 3 decisions and p=1
	f := newRunnerFixture(t, map[string]fakeScript{"a.mps.gz": {steps: 3, failAt: -1, vars: 4}})

	// WHEN one episode runs
	require.NoError(t, f.runner.Run(context.Background(), f.order(5, 1.0)))

	// THEN the stream is Start, Sample x3, Done, all tagged with the order
	events := drainEvents(t, f.results)
	assert.Equal(t, []EventType{EventStart, EventSample, EventSample, EventSample, EventDone}, eventTypes(events))
	for _, ev := range events {
		assert.Equal(t, int64(5), ev.EpisodeID)
		assert.Equal(t, uint32(1005), ev.Seed)
		assert.Equal(t, "a.mps.gz", ev.InstancePath)
	}

	// AND staging files are numbered by per-episode counter and hold the expert's choice
	for i, ev := range events[1:4] {
		assert.Equal(t, store.StagingPath(f.dir, 5, i), ev.StagingFile)
		rec, err := store.ReadRecord(ev.StagingFile)
		require.NoError(t, err)
		assert.Equal(t, i%4, rec.Action, "expert argmax at decision %d", i)
		assert.Contains(t, rec.ActionSet, rec.Action)
		assert.Len(t, rec.Scores, 4)
		assert.Len(t, rec.Observation.ColumnFeatures.Data, 4*fakeFeatureColumns, "sample keeps every feature column")
	}
	assert.Equal(t, []int{0, 1, 2}, f.env.takenActions())
	assert.Equal(t, 0, f.model.calls, "model unused on expert decisions")
	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.SamplesStaged))
}

func TestEpisodeRunner_FallbackDecisions_UseModelWithoutEngineeringColumns(t *testing.T) {
	// GIVEN p=0 so every decision goes through the learned model
	f := newRunnerFixture(t, map[string]fakeScript{"a.mps.gz": {steps: 4, failAt: -1, vars: 3}})

	// WHEN one episode runs
	require.NoError(t, f.runner.Run(context.Background(), f.order(0, 0.0)))

	// THEN no samples are staged
	assert.Equal(t, []EventType{EventStart, EventDone}, eventTypes(drainEvents(t, f.results)))
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".pkl"), "unexpected staged file %s", e.Name())
	}

	// AND the model saw two fewer columns at every decision and its argmax was played
	assert.Equal(t, []int{17, 17, 17, 17}, f.model.seenWidths())
	assert.Equal(t, []int{2, 2, 2, 2}, f.env.takenActions())
	assert.Equal(t, float64(4), testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("fallback")))
}

func TestEpisodeRunner_StepFailure_EndsEpisodeAndLogs(t *testing.T) {
	// GIVEN a solve that fails on its second step
	f := newRunnerFixture(t, map[string]fakeScript{"a.mps.gz": {steps: 5, failAt: 1, vars: 2}})

	// WHEN the episode runs
	err := f.runner.Run(context.Background(), f.order(3, 1.0))

	// THEN the failure is not returned
	require.NoError(t, err)

	// AND Done still follows, with no samples after the failing decision
	events := drainEvents(t, f.results)
	assert.Equal(t, []EventType{EventStart, EventSample, EventSample, EventDone}, eventTypes(events))
	assert.Equal(t, int64(1), f.failures.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SolverFailures))

	// AND the error log has one two-line entry
	data, err := os.ReadFile(filepath.Join(f.dir, "error_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Error occurred solving a.mps.gz with seed 1003\n"+errFakeSolver.Error()+"\n", string(data))

	// AND the environment accepts the next episode
	require.NoError(t, f.runner.Run(context.Background(), f.order(4, 1.0)))
}

func TestEpisodeRunner_Cancelled_FinishesEpisodeWithoutRecording(t *testing.T) {
	// GIVEN a worker whose stop signal has already fired
	f := newRunnerFixture(t, map[string]fakeScript{"a.mps.gz": {steps: 3, failAt: -1, vars: 2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN it runs an order anyway
	require.NoError(t, f.runner.Run(ctx, f.order(0, 1.0)))

	// THEN the episode is played to the end but nothing is recorded
	assert.Len(t, f.env.takenActions(), 3)
	assert.Equal(t, []EventType{EventStart, EventDone}, eventTypes(drainEvents(t, f.results)))
}

func TestEpisodeRunner_ResetFailure_IsFatal(t *testing.T) {
	f := newRunnerFixture(t, nil)
	f.env.resetErr = errors.New("cannot read instance")

	err := f.runner.Run(context.Background(), f.order(0, 1.0))

	assert.ErrorIs(t, err, f.env.resetErr)
	assert.Equal(t, 0, f.results.Len(), "no Start without a successful reset")
}

func TestEpisodeRunner_OracleFailure_IsFatal(t *testing.T) {
	f := newRunnerFixture(t, nil)
	boom := errors.New("oracle crashed")
	f.runner.backend.Expert = &fakeOracle{expert: true, extractErr: boom}

	err := f.runner.Run(context.Background(), f.order(0, 1.0))

	assert.ErrorIs(t, err, boom)
}

func TestEpisodeRunner_CounterRestartsPerOrder(t *testing.T) {
	f := newRunnerFixture(t, map[string]fakeScript{"a.mps.gz": {steps: 2, failAt: -1, vars: 2}})
	require.NoError(t, f.runner.Run(context.Background(), f.order(0, 1.0)))
	require.NoError(t, f.runner.Run(context.Background(), f.order(1, 1.0)))

	var files []string
	for _, ev := range drainEvents(t, f.results) {
		if ev.Type == EventSample {
			files = append(files, filepath.Base(ev.StagingFile))
		}
	}
	assert.Equal(t, []string{"sample_0_0.pkl", "sample_0_1.pkl", "sample_1_0.pkl", "sample_1_1.pkl"}, files)
}

func TestArgmaxOver(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		actionSet []int
		want      int
	}{
		{"restricted to action set", []float64{9, 1, 5}, []int{1, 2}, 2},
		{"tie goes to first in action-set order", []float64{0, 3, 3, 3}, []int{3, 1, 2}, 3},
		{"single action", []float64{-1, -2}, []int{1}, 1},
		{"negative scores", []float64{-5, -1, -3}, []int{0, 1, 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := argmaxOver(tt.scores, tt.actionSet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgmaxOver_Errors(t *testing.T) {
	_, err := argmaxOver([]float64{1}, nil)
	assert.Error(t, err)
	_, err = argmaxOver([]float64{1}, []int{0, 3})
	assert.Error(t, err)
}
