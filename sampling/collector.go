package sampling

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

// Collector consumes the interleaved event stream of all workers, promotes
// staged samples to sample_1..sample_<target> in (episode, sample) order, and
// decides when the dispatcher and the whole pipeline stop.
//
// Thread-safety: NOT thread-safe. Runs on the caller's goroutine.
type Collector struct {
	results        *Queue[Event]
	buffer         *EpisodeBuffer
	outDir         string
	target         int
	maxEpisodes    int64 // 0 = unlimited
	progressEvery  int
	stopDispatcher func()
	metrics        *Metrics

	written           int
	inFlight          int
	dispatcherStopped bool
}

// Run consumes events until target samples are written, or (with an episode
// cap) every capped episode has been drained. Returns ctx's cause if ctx ends
// first, and a wrapped error on protocol violations or IO failures.
func (c *Collector) Run(ctx context.Context) error {
	for !c.finished() {
		ev, err := c.results.Get(ctx)
		if err != nil {
			return context.Cause(ctx)
		}
		if err := c.receive(ev); err != nil {
			return err
		}
		if err := c.drain(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) finished() bool {
	if c.written >= c.target {
		return true
	}
	return c.maxEpisodes > 0 && c.buffer.Next() >= c.maxEpisodes
}

func (c *Collector) receive(ev Event) error {
	if ev.Type == EventStart {
		if err := c.buffer.Open(ev.EpisodeID); err != nil {
			return fmt.Errorf("collector: %w", err)
		}
		c.metrics.BufferedEpisodes.Set(float64(c.buffer.Len()))
		return nil
	}
	if err := c.buffer.Append(ev); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	if ev.Type == EventSample {
		c.inFlight++
		c.metrics.SamplesInFlight.Set(float64(c.inFlight))
		c.maybeStopDispatcher()
	}
	return nil
}

// drain emits everything the cursor episode has buffered, moving on to later
// episodes for as long as they are complete enough to make progress.
func (c *Collector) drain() error {
	for {
		ev, ok := c.buffer.Pop()
		if !ok {
			return nil
		}
		switch ev.Type {
		case EventDone:
			c.metrics.EpisodesCompleted.Inc()
			c.metrics.BufferedEpisodes.Set(float64(c.buffer.Len()))
			if c.finished() {
				return nil
			}
		case EventSample:
			if err := c.write(ev); err != nil {
				return err
			}
			if c.written == c.target {
				c.buffer.Clear()
				c.metrics.BufferedEpisodes.Set(0)
				return nil
			}
		}
	}
}

func (c *Collector) write(ev Event) error {
	if _, err := store.Promote(ev.StagingFile, c.outDir, c.written+1); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	c.inFlight--
	c.written++
	c.metrics.SamplesWritten.Inc()
	c.metrics.SamplesInFlight.Set(float64(c.inFlight))
	logrus.Debugf("%d / %d samples written, ep %d (%d in buffer)", c.written, c.target, ev.EpisodeID, c.inFlight)
	if c.progressEvery > 0 && c.written%c.progressEvery == 0 {
		logrus.Infof("%d / %d samples written", c.written, c.target)
	}
	c.maybeStopDispatcher()
	return nil
}

// maybeStopDispatcher stops new orders once the samples already received
// cover the target. Episodes already queued or running still finish.
func (c *Collector) maybeStopDispatcher() {
	if c.dispatcherStopped || c.inFlight+c.written < c.target {
		return
	}
	c.stopDispatcher()
	c.dispatcherStopped = true
	logrus.Debugf("dispatcher stopped: %d written + %d in flight", c.written, c.inFlight)
}

// Written returns the number of samples promoted so far.
func (c *Collector) Written() int {
	return c.written
}

// InFlight returns the number of received but not yet promoted samples.
func (c *Collector) InFlight() int {
	return c.inFlight
}

// DispatcherStopped reports whether the collector has told the dispatcher to stop.
func (c *Collector) DispatcherStopped() bool {
	return c.dispatcherStopped
}
