package sampling

import (
	"errors"
	"fmt"
)

// ErrUnknownEpisode is returned when an event names an episode whose Start has
// not been seen (or that has already been drained).
var ErrUnknownEpisode = errors.New("event for episode that is not open")

// defaultCompactEvery is how many drained episodes trigger a map rebuild.
const defaultCompactEvery = 1024

// EpisodeBuffer reorders interleaved per-episode event streams into episode-id
// order. Episodes are open from Start until their Done has been popped; next is
// the only episode whose events may be popped.
//
// Thread-safety: NOT thread-safe. Owned by the collector goroutine.
type EpisodeBuffer struct {
	pending      map[int64][]Event
	next         int64
	drained      int
	compactEvery int
	highWater    int
}

// NewEpisodeBuffer creates an empty buffer whose cursor is episode 0.
func NewEpisodeBuffer() *EpisodeBuffer {
	return &EpisodeBuffer{
		pending:      make(map[int64][]Event),
		compactEvery: defaultCompactEvery,
	}
}

// Open registers the Start of an episode.
func (b *EpisodeBuffer) Open(id int64) error {
	if id < b.next {
		return fmt.Errorf("episode %d already drained (cursor at %d)", id, b.next)
	}
	if _, ok := b.pending[id]; ok {
		return fmt.Errorf("episode %d started twice", id)
	}
	b.pending[id] = []Event{}
	if len(b.pending) > b.highWater {
		b.highWater = len(b.pending)
	}
	return nil
}

// Append queues a Sample or Done event behind earlier events of its episode.
func (b *EpisodeBuffer) Append(ev Event) error {
	if ev.Type == EventStart {
		return fmt.Errorf("episode %d: start event must go through Open", ev.EpisodeID)
	}
	events, ok := b.pending[ev.EpisodeID]
	if !ok {
		return fmt.Errorf("episode %d %s: %w", ev.EpisodeID, ev.Type, ErrUnknownEpisode)
	}
	b.pending[ev.EpisodeID] = append(events, ev)
	return nil
}

// Pop removes the oldest buffered event of the cursor episode. Popping its Done
// closes the episode and advances the cursor. ok is false when the cursor
// episode has not started or has nothing buffered.
func (b *EpisodeBuffer) Pop() (ev Event, ok bool) {
	events := b.pending[b.next]
	if len(events) == 0 {
		return Event{}, false
	}
	ev = events[0]
	b.pending[b.next] = events[1:]
	if ev.Type == EventDone {
		delete(b.pending, b.next)
		b.next++
		b.drained++
		if b.drained%b.compactEvery == 0 {
			b.compact()
		}
	}
	return ev, true
}

// compact rebuilds the map so storage released by deleted episodes is reclaimed.
func (b *EpisodeBuffer) compact() {
	fresh := make(map[int64][]Event, len(b.pending))
	for id, events := range b.pending {
		fresh[id] = events
	}
	b.pending = fresh
}

// Clear drops every open episode. The cursor is left where it is.
func (b *EpisodeBuffer) Clear() {
	b.pending = make(map[int64][]Event)
}

// Next returns the cursor: the lowest episode id not yet fully drained.
func (b *EpisodeBuffer) Next() int64 {
	return b.next
}

// Len returns the number of open episodes.
func (b *EpisodeBuffer) Len() int {
	return len(b.pending)
}

// HighWater returns the largest number of simultaneously open episodes seen.
func (b *EpisodeBuffer) HighWater() int {
	return b.highWater
}

// IsOpen reports whether episode id has started and not been drained.
func (b *EpisodeBuffer) IsOpen(id int64) bool {
	_, ok := b.pending[id]
	return ok
}
