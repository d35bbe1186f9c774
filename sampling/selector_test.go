package sampling

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringSelector_ProbabilityOne_AlwaysExpert(t *testing.T) {
	expert, fallback := &fakeOracle{expert: true}, &fakeOracle{}
	s := NewScoringSelector(1.0, expert, fallback)
	st := &fakeState{vars: 3}
	require.NoError(t, s.ResetEpisode(st, rand.New(rand.NewSource(1))))

	for i := 0; i < 200; i++ {
		_, isExpert, err := s.Extract(st, false)
		require.NoError(t, err)
		require.True(t, isExpert, "call %d", i)
	}
	assert.Equal(t, int64(200), expert.extracts.Load())
	assert.Equal(t, int64(0), fallback.extracts.Load())
}

func TestScoringSelector_ProbabilityZero_NeverExpert(t *testing.T) {
	expert, fallback := &fakeOracle{expert: true}, &fakeOracle{}
	s := NewScoringSelector(0.0, expert, fallback)
	st := &fakeState{vars: 3}
	require.NoError(t, s.ResetEpisode(st, rand.New(rand.NewSource(1))))

	for i := 0; i < 200; i++ {
		_, isExpert, err := s.Extract(st, false)
		require.NoError(t, err)
		require.False(t, isExpert, "call %d", i)
	}
	assert.Equal(t, int64(0), expert.extracts.Load())
}

func TestScoringSelector_DrawsPerDecision(t *testing.T) {
	// GIVEN p=0.5 and a fixed stream
	s := NewScoringSelector(0.5, &fakeOracle{expert: true}, &fakeOracle{})
	st := &fakeState{vars: 2}
	require.NoError(t, s.ResetEpisode(st, rand.New(rand.NewSource(42))))

	// WHEN many decisions are made within one episode
	experts := 0
	const n = 2000
	for i := 0; i < n; i++ {
		_, isExpert, err := s.Extract(st, false)
		require.NoError(t, err)
		if isExpert {
			experts++
		}
	}

	// THEN both sources are used, roughly half each
	assert.InDelta(t, n/2, experts, n/10)
}

func TestScoringSelector_ResetsBothOracles(t *testing.T) {
	expert, fallback := &fakeOracle{expert: true}, &fakeOracle{}
	s := NewScoringSelector(0.3, expert, fallback)
	require.NoError(t, s.ResetEpisode(&fakeState{vars: 1}, rand.New(rand.NewSource(1))))
	require.NoError(t, s.ResetEpisode(&fakeState{vars: 1}, rand.New(rand.NewSource(2))))
	assert.Equal(t, int64(2), expert.resets.Load())
	assert.Equal(t, int64(2), fallback.resets.Load())
}

func TestScoringSelector_OracleErrorPropagates(t *testing.T) {
	boom := errors.New("strong branching failed")
	s := NewScoringSelector(1.0, &fakeOracle{expert: true, extractErr: boom}, &fakeOracle{})
	require.NoError(t, s.ResetEpisode(&fakeState{vars: 1}, rand.New(rand.NewSource(1))))

	_, isExpert, err := s.Extract(&fakeState{vars: 1}, false)
	assert.ErrorIs(t, err, boom)
	assert.True(t, isExpert)
}

func TestScoringSelector_ExtractBeforeReset_Errors(t *testing.T) {
	s := NewScoringSelector(0.5, &fakeOracle{expert: true}, &fakeOracle{})
	_, _, err := s.Extract(&fakeState{vars: 1}, false)
	assert.Error(t, err)
}

func TestNewScoringSelector_InvalidProbability_Panics(t *testing.T) {
	assert.Panics(t, func() { NewScoringSelector(1.5, &fakeOracle{}, &fakeOracle{}) })
	assert.Panics(t, func() { NewScoringSelector(-0.1, &fakeOracle{}, &fakeOracle{}) })
	assert.Panics(t, func() { NewScoringSelector(0.5, nil, &fakeOracle{}) })
}

func TestEpisodeRNG_SameSeedSameStream(t *testing.T) {
	a, b := episodeRNG(77), episodeRNG(77)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
	assert.NotEqual(t, episodeRNG(77).Int63(), episodeRNG(78).Int63())
}
