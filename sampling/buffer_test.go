package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(t EventType, episode int64) Event {
	return Event{Type: t, EpisodeID: episode}
}

func TestEpisodeBuffer_PopsOnlyCursorEpisode(t *testing.T) {
	// GIVEN episode 1 fully buffered while episode 0 has only started
	b := NewEpisodeBuffer()
	require.NoError(t, b.Open(1))
	require.NoError(t, b.Append(ev(EventSample, 1)))
	require.NoError(t, b.Append(ev(EventDone, 1)))
	require.NoError(t, b.Open(0))

	// WHEN popping
	_, ok := b.Pop()

	// THEN nothing comes out until episode 0 has events
	assert.False(t, ok)
	assert.Equal(t, int64(0), b.Next())

	// AND once episode 0 completes, its events come first, then episode 1's
	require.NoError(t, b.Append(ev(EventDone, 0)))
	var got []Event
	for e, ok := b.Pop(); ok; e, ok = b.Pop() {
		got = append(got, e)
	}
	assert.Equal(t, []Event{ev(EventDone, 0), ev(EventSample, 1), ev(EventDone, 1)}, got)
	assert.Equal(t, int64(2), b.Next())
}

func TestEpisodeBuffer_SampleWithoutStart_Rejected(t *testing.T) {
	b := NewEpisodeBuffer()
	err := b.Append(ev(EventSample, 0))
	assert.ErrorIs(t, err, ErrUnknownEpisode)
}

func TestEpisodeBuffer_DoneNotPoppedBeforeArrival(t *testing.T) {
	// An open episode with samples but no Done must not advance the cursor.
	b := NewEpisodeBuffer()
	require.NoError(t, b.Open(0))
	require.NoError(t, b.Append(ev(EventSample, 0)))

	e, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, EventSample, e.Type)
	_, ok = b.Pop()
	assert.False(t, ok)
	assert.True(t, b.IsOpen(0))
	assert.Equal(t, int64(0), b.Next())
}

func TestEpisodeBuffer_OpenTwiceOrAfterDrain_Rejected(t *testing.T) {
	b := NewEpisodeBuffer()
	require.NoError(t, b.Open(0))
	assert.Error(t, b.Open(0))
	require.NoError(t, b.Append(ev(EventDone, 0)))
	_, ok := b.Pop()
	require.True(t, ok)
	assert.Error(t, b.Open(0), "drained episode cannot restart")
	assert.Error(t, b.Append(ev(EventStart, 1)))
}

func TestEpisodeBuffer_DrainedEpisodesDoNotLeak(t *testing.T) {
	// GIVEN a small compaction period
	b := NewEpisodeBuffer()
	b.compactEvery = 4

	// WHEN many episodes go through in order
	for id := int64(0); id < 100; id++ {
		require.NoError(t, b.Open(id))
		require.NoError(t, b.Append(ev(EventSample, id)))
		require.NoError(t, b.Append(ev(EventDone, id)))
		for _, ok := b.Pop(); ok; _, ok = b.Pop() {
		}
	}

	// THEN no entry survives for a drained episode
	assert.Equal(t, 0, b.Len())
	for id := int64(0); id < 100; id++ {
		assert.False(t, b.IsOpen(id))
	}
	assert.Equal(t, int64(100), b.Next())
	assert.Equal(t, 1, b.HighWater())
}

func TestEpisodeBuffer_HighWaterTracksOutOfOrderBacklog(t *testing.T) {
	b := NewEpisodeBuffer()
	for id := int64(3); id >= 1; id-- {
		require.NoError(t, b.Open(id))
		require.NoError(t, b.Append(ev(EventDone, id)))
	}
	require.NoError(t, b.Open(0))
	require.NoError(t, b.Append(ev(EventDone, 0)))
	for _, ok := b.Pop(); ok; _, ok = b.Pop() {
	}
	assert.Equal(t, 4, b.HighWater())
	assert.Equal(t, 0, b.Len())
}

func TestEpisodeBuffer_Clear(t *testing.T) {
	b := NewEpisodeBuffer()
	require.NoError(t, b.Open(0))
	require.NoError(t, b.Open(1))
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int64(0), b.Next())
}
