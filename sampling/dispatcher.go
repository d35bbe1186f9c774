package sampling

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

// Dispatcher manufactures work orders until stopped. Its only brake is the
// bounded work queue: Put blocks while every slot is taken.
type Dispatcher struct {
	catalog           *store.Catalog
	rng               *rand.Rand
	orders            *Queue[WorkOrder]
	expertProbability float64
	timeLimit         float64
	stagingDir        string
	maxEpisodes       int64 // 0 = unlimited
	metrics           *Metrics

	issued atomic.Int64
}

// Run issues orders with consecutive episode ids from 0 until ctx is cancelled
// or maxEpisodes orders have been queued. Orders already queued are left for
// the workers. Returns nil on a normal stop.
func (d *Dispatcher) Run(ctx context.Context) error {
	for episode := int64(0); d.maxEpisodes == 0 || episode < d.maxEpisodes; episode++ {
		if ctx.Err() != nil {
			return nil
		}
		instance := d.catalog.Path(d.rng.Intn(d.catalog.Len()))
		bound, err := d.catalog.Bound(instance)
		if err != nil {
			return fmt.Errorf("dispatching episode %d: %w", episode, err)
		}
		order := WorkOrder{
			EpisodeID:         episode,
			InstancePath:      instance,
			InitialBound:      bound,
			Seed:              d.rng.Uint32(),
			ExpertProbability: d.expertProbability,
			TimeLimit:         d.timeLimit,
			OutputDir:         d.stagingDir,
		}
		if err := d.orders.Put(ctx, order); err != nil {
			return nil
		}
		d.issued.Add(1)
		d.metrics.WorkQueueDepth.Set(float64(d.orders.Len()))
	}
	logrus.Debugf("dispatcher: episode cap %d reached", d.maxEpisodes)
	return nil
}

// Issued returns how many orders have been queued so far.
func (d *Dispatcher) Issued() int64 {
	return d.issued.Load()
}
