package sampling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// fakeFeatureColumns matches the width of the variable features a real
// environment reports, engineering columns included.
const fakeFeatureColumns = 19

var errFakeSolver = errors.New("fake solver: LP error")

// fakeScript describes how episodes on one instance unfold.
type fakeScript struct {
	steps  int           // decisions before the solve ends
	failAt int           // Step call (0-based) that fails; -1 = never
	vars   int           // variables per observation
	delay  time.Duration // sleep inside every Step
}

func defaultScript() fakeScript {
	return fakeScript{steps: 3, failAt: -1, vars: 4}
}

// fakeState is the Model handle the fake environment passes to the oracles.
type fakeState struct {
	instance string
	step     int
	vars     int
}

// fakeEnv replays a fakeScript per instance. Actions taken are recorded.
type fakeEnv struct {
	scripts  map[string]fakeScript
	resetErr error

	mu      sync.Mutex
	seed    uint32
	cur     *fakeState
	script  fakeScript
	actions []int
	resets  int
	closed  bool
}

func newFakeEnv(scripts map[string]fakeScript) *fakeEnv {
	return &fakeEnv{scripts: scripts}
}

func (e *fakeEnv) Seed(seed uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seed = seed
}

func (e *fakeEnv) Reset(_ context.Context, instance string, _, _ float64) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resetErr != nil {
		return StepResult{}, e.resetErr
	}
	script, ok := e.scripts[instance]
	if !ok {
		script = defaultScript()
	}
	e.script = script
	e.cur = &fakeState{instance: instance, vars: script.vars}
	e.resets++
	return e.observe(), nil
}

func (e *fakeEnv) Step(_ context.Context, action int) (StepResult, error) {
	e.mu.Lock()
	script := e.script
	e.mu.Unlock()
	if script.delay > 0 {
		time.Sleep(script.delay)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return StepResult{}, fmt.Errorf("step before reset")
	}
	e.actions = append(e.actions, action)
	if e.cur.step == script.failAt {
		e.cur = nil
		return StepResult{}, errFakeSolver
	}
	e.cur = &fakeState{instance: e.cur.instance, step: e.cur.step + 1, vars: e.cur.vars}
	return e.observe(), nil
}

func (e *fakeEnv) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// observe must be called with mu held.
func (e *fakeEnv) observe() StepResult {
	st := e.cur
	cols := make([][]float64, st.vars)
	actionSet := make([]int, st.vars)
	for i := range cols {
		cols[i] = make([]float64, fakeFeatureColumns)
		for j := range cols[i] {
			cols[i][j] = float64(100*i + j)
		}
		actionSet[i] = i
	}
	colFeatures, _ := graph.FromRows(cols)
	rowFeatures, _ := graph.FromRows([][]float64{{1, float64(st.step)}})
	obs := &graph.Observation{
		RowFeatures:    rowFeatures,
		EdgeIndex:      [2][]int{{0}, {0}},
		EdgeValues:     []float64{1},
		ColumnFeatures: colFeatures,
	}
	return StepResult{
		Model:       st,
		Observation: obs,
		ActionSet:   actionSet,
		Done:        st.step >= e.script.steps,
	}
}

func (e *fakeEnv) takenActions() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.actions...)
}

// expertScores ranks variable step%vars highest.
func expertScores(st *fakeState) []float64 {
	scores := make([]float64, st.vars)
	scores[st.step%st.vars] = 1
	return scores
}

// fakeOracle is an expert (ranked scores) or fallback (all ties) oracle.
type fakeOracle struct {
	expert     bool
	extractErr error

	resets   atomic.Int64
	extracts atomic.Int64
}

func (o *fakeOracle) ResetEpisode(Model) error {
	o.resets.Add(1)
	return nil
}

func (o *fakeOracle) Extract(m Model, _ bool) ([]float64, error) {
	o.extracts.Add(1)
	if o.extractErr != nil {
		return nil, o.extractErr
	}
	st := m.(*fakeState)
	if o.expert {
		return expertScores(st), nil
	}
	return make([]float64, st.vars), nil
}

// fakeModel always prefers the last variable and records the feature widths it sees.
type fakeModel struct {
	mu     sync.Mutex
	widths []int
	calls  int
}

func (m *fakeModel) Score(obs *graph.Observation) ([]float64, error) {
	_, c := obs.ColumnFeatures.Dims()
	m.mu.Lock()
	m.widths = append(m.widths, c)
	m.calls++
	m.mu.Unlock()
	n := obs.NumVariables()
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = float64(i)
	}
	return scores, nil
}

func (m *fakeModel) seenWidths() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.widths...)
}

// fakeFactory builds one fakeEnv per worker over the same scripts.
type fakeFactory struct {
	scripts map[string]fakeScript

	mu   sync.Mutex
	envs []*fakeEnv
}

func (f *fakeFactory) build(int) (*Backend, error) {
	env := newFakeEnv(f.scripts)
	f.mu.Lock()
	f.envs = append(f.envs, env)
	f.mu.Unlock()
	return &Backend{Env: env, Expert: &fakeOracle{expert: true}, Fallback: &fakeOracle{}}, nil
}

func (f *fakeFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.envs {
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if !closed {
			return false
		}
	}
	return len(f.envs) > 0
}

// drainEvents takes every event currently in q.
func drainEvents(t *testing.T, q *Queue[Event]) []Event {
	t.Helper()
	var out []Event
	for q.Len() > 0 {
		ev, err := q.Get(context.Background())
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
