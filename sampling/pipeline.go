package sampling

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

// DefaultShutdownGrace bounds how long CollectSamples waits for workers that
// are still finishing an episode before removing the staging directory.
const DefaultShutdownGrace = 30 * time.Second

// Config groups everything one CollectSamples call needs. Backends and the
// scoring model are injected so tests can substitute fakes.
type Config struct {
	Catalog           *store.Catalog
	OutputDir         string
	Target            int     // exact number of samples to write
	Workers           int     // worker goroutines (>= 1)
	QueueCapacity     int     // work queue capacity; 0 = 2*Workers
	ExpertProbability float64 // in [0, 1]
	TimeLimit         float64 // per-episode solver budget, seconds
	Seed              int64   // run seed; drives instance choice and episode seeds
	MaxEpisodes       int64   // 0 = unlimited; otherwise stop after this many episodes
	ErrorLogPath      string  // default <OutputDir>/error_log.txt
	ShutdownGrace     time.Duration
	ProgressEvery     int // info line every N samples; 0 = off

	Model      ScoringModel
	NewBackend BackendFactory
	Metrics    *Metrics // optional; unregistered instruments are used when nil
}

// Validate checks the configuration before any goroutine starts.
func (c *Config) Validate() error {
	if c.Catalog == nil || c.Catalog.Len() == 0 {
		return store.ErrNoInstances
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory must be set")
	}
	if c.Target < 0 {
		return fmt.Errorf("target must be >= 0, got %d", c.Target)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must be >= 0, got %d", c.QueueCapacity)
	}
	if c.ExpertProbability < 0 || c.ExpertProbability > 1 {
		return fmt.Errorf("expert probability must be in [0, 1], got %v", c.ExpertProbability)
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive, got %v", c.TimeLimit)
	}
	if c.MaxEpisodes < 0 {
		return fmt.Errorf("max episodes must be >= 0, got %d", c.MaxEpisodes)
	}
	if c.Model == nil {
		return fmt.Errorf("scoring model must be set")
	}
	if c.NewBackend == nil {
		return fmt.Errorf("backend factory must be set")
	}
	return nil
}

// Result summarises one CollectSamples call.
type Result struct {
	Written        int    // samples promoted to the dataset
	Episodes       int64  // episodes drained in order
	Dispatched     int64  // orders queued
	SolverFailures int64
	PeakBuffered   int    // most episodes the collector held at once
	ErrorLogPath   string // where solver failures were appended
}

// CollectSamples runs dispatcher, workers and collector until cfg.Target samples
// are written to cfg.OutputDir as sample_1.pkl..sample_<Target>.pkl, or until
// cfg.MaxEpisodes episodes have been drained. The staging directory is removed
// before returning.
//
// Workers still inside an episode when the target is reached are given
// cfg.ShutdownGrace to finish; after that they are abandoned and cleanup is
// best-effort.
func CollectSamples(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling config: %w", err)
	}
	queueCap := cfg.QueueCapacity
	if queueCap == 0 {
		queueCap = 2 * cfg.Workers
	}
	grace := cfg.ShutdownGrace
	if grace == 0 {
		grace = DefaultShutdownGrace
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil, "")
	}
	errLogPath := cfg.ErrorLogPath
	if errLogPath == "" {
		errLogPath = cfg.OutputDir + string(os.PathSeparator) + "error_log.txt"
	}

	staging, err := store.NewStaging(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := staging.Remove(); rmErr != nil {
			logrus.Warnf("removing staging directory %s: %v", staging.Dir(), rmErr)
		}
	}()

	backends, err := buildBackends(cfg.NewBackend, cfg.Workers)
	if err != nil {
		return nil, err
	}

	orders := NewQueue[WorkOrder](queueCap)
	results := NewQueue[Event](0)
	errLog := NewErrorLog(errLogPath)
	var failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	dispatchCtx, stopDispatcher := context.WithCancel(gctx)
	defer stopDispatcher()
	workCtx, stopWorkers := context.WithCancel(gctx)
	defer stopWorkers()

	rng := NewPartitionedRNG(NewRunKey(cfg.Seed))
	dispatcher := &Dispatcher{
		catalog:           cfg.Catalog,
		rng:               rng.ForSubsystem(SubsystemDispatcher),
		orders:            orders,
		expertProbability: cfg.ExpertProbability,
		timeLimit:         cfg.TimeLimit,
		stagingDir:        staging.Dir(),
		maxEpisodes:       cfg.MaxEpisodes,
		metrics:           metrics,
	}
	g.Go(func() error { return dispatcher.Run(dispatchCtx) })

	for id, backend := range backends {
		w := &Worker{
			id:     id,
			orders: orders,
			runner: &EpisodeRunner{
				worker:   id,
				backend:  backend,
				model:    cfg.Model,
				results:  results,
				errLog:   errLog,
				metrics:  metrics,
				failures: &failures,
			},
		}
		g.Go(func() error { return w.Run(workCtx) })
	}

	collector := &Collector{
		results:        results,
		buffer:         NewEpisodeBuffer(),
		outDir:         cfg.OutputDir,
		target:         cfg.Target,
		maxEpisodes:    cfg.MaxEpisodes,
		progressEvery:  cfg.ProgressEvery,
		stopDispatcher: stopDispatcher,
		metrics:        metrics,
	}
	logrus.Infof("collecting %d samples into %s with %d workers (work queue capacity %d)",
		cfg.Target, cfg.OutputDir, cfg.Workers, queueCap)
	logrus.Debugf("solver failures are logged to %s", errLog.Path())
	collectErr := collector.Run(gctx)

	stopDispatcher()
	stopWorkers()
	waitErr, joined := join(g, grace)
	if !joined {
		logrus.Warnf("workers still running after %s; removing staging directory anyway", grace)
	}

	result := &Result{
		Written:        collector.Written(),
		Episodes:       collector.buffer.Next(),
		Dispatched:     dispatcher.Issued(),
		SolverFailures: failures.Load(),
		PeakBuffered:   collector.buffer.HighWater(),
		ErrorLogPath:   errLog.Path(),
	}
	if collectErr != nil {
		if waitErr != nil {
			return result, waitErr
		}
		return result, collectErr
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		logrus.Warnf("worker failed after the sample budget was met: %v", waitErr)
	}
	if result.Written < cfg.Target {
		logrus.Warnf("episode cap %d reached with %d / %d samples written", cfg.MaxEpisodes, result.Written, cfg.Target)
	}
	return result, nil
}

// buildBackends creates one backend per worker, closing the ones already
// built if any factory call fails.
func buildBackends(factory BackendFactory, n int) ([]*Backend, error) {
	backends := make([]*Backend, 0, n)
	for id := 0; id < n; id++ {
		b, err := factory(id)
		if err == nil && (b == nil || b.Env == nil || b.Expert == nil || b.Fallback == nil) {
			err = fmt.Errorf("incomplete backend")
		}
		if err != nil {
			for _, built := range backends {
				_ = built.Env.Close()
			}
			return nil, fmt.Errorf("building backend for worker %d: %w", id, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// join waits for the group for at most grace. joined is false on timeout.
func join(g *errgroup.Group, grace time.Duration) (err error, joined bool) {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err, true
	case <-time.After(grace):
		return nil, false
	}
}
