package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bnb-imitation/samplegen/sampling"
	"github.com/bnb-imitation/samplegen/sampling/bridge"
	"github.com/bnb-imitation/samplegen/sampling/policy"
	"github.com/bnb-imitation/samplegen/sampling/store"
)

var (
	// CLI flags for the generate command
	seed        int64  // Run seed; the train split uses seed+100, valid uses seed+1
	fileCount   int    // Dagger round
	trainSize   int    // Samples to write for the train split
	validSize   int    // Samples to write for the valid split
	njobs       int    // Worker goroutines
	configPath  string // dataset.yaml
	metricsAddr string // Prometheus listen address; empty disables
	maxEpisodes int64  // Per-split episode cap; 0 = unlimited
	envCmd      string // Solver helper command line
)

// Seed offsets per split keep train and valid episode streams disjoint.
const (
	trainSeedOffset = 100
	validSeedOffset = 1
)

// generateOptions is everything runGenerate needs, resolved from flags.
type generateOptions struct {
	Problem     string
	Seed        int64
	FileCount   int
	TrainSize   int
	ValidSize   int
	Workers     int
	MaxEpisodes int64
	Dataset     *DatasetConfig
	Registry    prometheus.Registerer
	NewBackend  sampling.BackendFactory
	Now         func() time.Time
}

type splitPlan struct {
	name    string
	seed    int64
	target  int
	catalog *store.Catalog
}

// runGenerate produces the train and valid splits of one dagger round and
// returns the run manifest. Every configuration problem is reported before
// any worker starts.
func runGenerate(ctx context.Context, opts generateOptions) (*store.Manifest, error) {
	dir, err := problemDir(opts.Problem)
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("--njobs must be >= 1, got %d", opts.Workers)
	}
	if opts.FileCount < 0 {
		return nil, fmt.Errorf("--file-count must be >= 0, got %d", opts.FileCount)
	}
	if opts.TrainSize < 0 || opts.ValidSize < 0 {
		return nil, fmt.Errorf("split sizes must be >= 0")
	}
	layout := newRunLayout(opts.Dataset, dir, opts.FileCount)

	splits := []splitPlan{
		{name: "train", seed: opts.Seed + trainSeedOffset, target: opts.TrainSize},
		{name: "valid", seed: opts.Seed + validSeedOffset, target: opts.ValidSize},
	}
	instanceDirs := []string{layout.TrainInstances, layout.ValidInstances}
	for i := range splits {
		paths, err := store.Discover(instanceDirs[i])
		if err != nil {
			return nil, fmt.Errorf("%s instances in %s: %w", splits[i].name, instanceDirs[i], err)
		}
		if splits[i].catalog, err = store.LoadCatalog(paths); err != nil {
			return nil, fmt.Errorf("%s instances: %w", splits[i].name, err)
		}
		logrus.Infof("%d %s instances for %d samples", len(paths), splits[i].name, splits[i].target)
	}

	if _, err := os.Stat(layout.RunDir); err == nil {
		return nil, fmt.Errorf("output directory %s already exists", layout.RunDir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking output directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(layout.RunDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating output root: %w", err)
	}
	if err := os.Mkdir(layout.RunDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err := store.WriteYAML(filepath.Join(layout.RunDir, "dataset.yaml"), opts.Dataset); err != nil {
		return nil, err
	}

	model, err := policy.Load(layout.Checkpoint,
		sampling.NewPartitionedRNG(sampling.NewRunKey(opts.Seed)).ForSubsystem(sampling.SubsystemPolicy))
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	manifest := store.NewManifest(opts.Problem, opts.Seed, opts.FileCount, opts.Workers, layout.Checkpoint, now())
	manifestPath := filepath.Join(layout.RunDir, "run.yaml")
	if err := store.WriteYAML(manifestPath, manifest); err != nil {
		return nil, err
	}

	for _, split := range splits {
		outDir := filepath.Join(layout.RunDir, split.name)
		logrus.Infof("generating %s split (seed %d) into %s", split.name, split.seed, outDir)
		start := time.Now()
		res, err := sampling.CollectSamples(ctx, sampling.Config{
			Catalog:           split.catalog,
			OutputDir:         outDir,
			Target:            split.target,
			Workers:           opts.Workers,
			QueueCapacity:     opts.Dataset.QueueCapacity,
			ExpertProbability: opts.Dataset.NodeRecordProb,
			TimeLimit:         opts.Dataset.TimeLimit,
			Seed:              split.seed,
			MaxEpisodes:       opts.MaxEpisodes,
			ErrorLogPath:      filepath.Join(layout.RunDir, "error_log.txt"),
			ShutdownGrace:     time.Duration(opts.Dataset.ShutdownGrace),
			ProgressEvery:     opts.Dataset.ProgressEvery,
			Model:             model,
			NewBackend:        opts.NewBackend,
			Metrics:           sampling.NewMetrics(opts.Registry, split.name),
		})
		if err != nil {
			return manifest, fmt.Errorf("%s split: %w", split.name, err)
		}
		manifest.Splits = append(manifest.Splits, store.SplitManifest{
			Name:      split.name,
			Seed:      split.seed,
			Instances: split.catalog.Len(),
			Target:    split.target,
			Written:   res.Written,
			Episodes:  res.Episodes,
			Failures:  res.SolverFailures,
			OutputDir: outDir,
		})
		if err := store.WriteYAML(manifestPath, manifest); err != nil {
			return manifest, err
		}
		logrus.Infof("%s split: %d samples from %d episodes (%d solver failures) in %s",
			split.name, res.Written, res.Episodes, res.SolverFailures, time.Since(start).Round(time.Millisecond))
	}
	return manifest, nil
}

// serveMetrics exposes reg on addr until the returned stop function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics serving failed: %v", err)
		}
	}()
	logrus.Infof("serving metrics on %s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// generateCmd collects the train and valid splits for one problem
var generateCmd = &cobra.Command{
	Use:       "generate <problem>",
	Short:     "Collect expert samples for one dagger round",
	Args:      cobra.ExactArgs(1),
	ValidArgs: problemNames(),
	Run: func(cmd *cobra.Command, args []string) {
		dataset, err := loadDatasetConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		argv := strings.Fields(envCmd)
		if len(argv) == 0 {
			logrus.Fatalf("--env-cmd must name the solver helper")
		}
		logrus.Infof("seed %d", seed)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if metricsAddr != "" {
			stopMetrics := serveMetrics(metricsAddr, reg)
			defer stopMetrics()
		}

		manifest, err := runGenerate(ctx, generateOptions{
			Problem:     args[0],
			Seed:        seed,
			FileCount:   fileCount,
			TrainSize:   trainSize,
			ValidSize:   validSize,
			Workers:     njobs,
			MaxEpisodes: maxEpisodes,
			Dataset:     dataset,
			Registry:    reg,
			NewBackend:  bridge.NewFactory(ctx, argv),
		})
		if err != nil {
			logrus.Fatalf("Generation failed: %v", err)
		}
		logrus.Infof("Generation complete: run %s", manifest.RunID)
	},
}

func init() {
	generateCmd.Flags().Int64VarP(&seed, "seed", "s", 0, "Random generator seed")
	generateCmd.Flags().IntVar(&fileCount, "file-count", 1, "Dagger round; round k loads the checkpoint trained on round k-1")
	generateCmd.Flags().IntVar(&trainSize, "train-size", 100, "Number of train samples")
	generateCmd.Flags().IntVar(&validSize, "valid-size", 100, "Number of validation samples")
	generateCmd.Flags().IntVarP(&njobs, "njobs", "j", 1, "Number of parallel workers")
	generateCmd.Flags().StringVar(&configPath, "config", "configs/dataset.yaml", "Path to dataset.yaml")
	generateCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	generateCmd.Flags().Int64Var(&maxEpisodes, "max-episodes", 0, "Stop each split after this many episodes (0 = until the sample target)")
	generateCmd.Flags().StringVar(&envCmd, "env-cmd", "", "Solver helper command line, started once per worker")
}
