// Package sampling provides the concurrent sample-collection pipeline that
// turns branch-and-bound episodes into an imitation-learning dataset.
//
// # Reading Guide
//
// Start with these three files to understand the pipeline:
//   - runner.go: one episode end to end (reset, decision loop, Start/Sample/Done events)
//   - collector.go: the single consumer that reorders events and numbers the output files
//   - pipeline.go: CollectSamples, which wires dispatcher, workers and collector together
//
// # Architecture
//
// Data flows Dispatcher → work queue (bounded) → Workers → results queue
// (unbounded) → Collector → <out>/sample_<n>.pkl. The bounded work queue is
// the only backpressure. Each episode is run by exactly one worker, so its
// events reach the collector in Start, Sample*, Done order; episodes interleave
// arbitrarily and the EpisodeBuffer restores episode-id order.
//
// Stop signals are contexts. The collector cancels the dispatcher once enough
// samples are in flight and cancels the workers once the target is written.
// Workers observe cancellation only between orders and before recording a
// sample; solver calls are never interrupted.
//
// Sub-packages:
//   - sampling/graph/: bipartite observations and the column transforms models need
//   - sampling/store/: sample codec, staging/promotion, instance catalog, run manifest
//   - sampling/policy/: learned scoring models (linear checkpoint, seeded random)
//   - sampling/bridge/: process-backed environment and oracles speaking JSON lines
//
// # Key Interfaces
//
// The collaborators are small interfaces so tests can substitute fakes:
//   - Environment: seed, reset, step and close one solver session
//   - ScoreOracle: expert and fallback scoring of the current node
//   - ScoringModel: learned per-variable scores from a reduced observation
//   - BackendFactory: builds each worker's environment and oracle pair
package sampling
