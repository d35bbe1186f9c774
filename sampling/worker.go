package sampling

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Worker pulls one order at a time from the work queue and runs it.
type Worker struct {
	id     int
	orders *Queue[WorkOrder]
	runner *EpisodeRunner
}

// Run loops until ctx is cancelled, checking it only between orders: an
// episode in progress always runs to its end. The worker's environment is
// closed on exit. A fatal episode error is returned.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if cerr := w.runner.backend.Env.Close(); cerr != nil {
			logrus.Warnf("worker %d: closing environment: %v", w.id, cerr)
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		order, err := w.orders.Get(ctx)
		if err != nil {
			return nil
		}
		if err := w.runner.Run(ctx, order); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
	}
}
