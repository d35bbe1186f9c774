package sampling

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "samplegen"

	// SplitLabel distinguishes the train and valid passes of one run.
	SplitLabel = "split"
	// SourceLabel is the score source of a decision: "expert" or "fallback".
	SourceLabel = "source"
)

// Metrics are the pipeline's Prometheus instruments for one split.
type Metrics struct {
	EpisodesStarted   prometheus.Counter
	EpisodesCompleted prometheus.Counter
	Decisions         *prometheus.CounterVec
	SamplesStaged     prometheus.Counter
	SamplesWritten    prometheus.Counter
	SolverFailures    prometheus.Counter
	SamplesInFlight   prometheus.Gauge
	BufferedEpisodes  prometheus.Gauge
	WorkQueueDepth    prometheus.Gauge
}

// NewMetrics creates the instruments labelled with split and registers them
// on reg. A nil reg leaves them unregistered (tests, library use).
func NewMetrics(reg prometheus.Registerer, split string) *Metrics {
	labels := prometheus.Labels{SplitLabel: split}
	m := &Metrics{
		EpisodesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "episodes_started_total",
			Help: "Episodes a worker has reset the environment for.", ConstLabels: labels,
		}),
		EpisodesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "episodes_completed_total",
			Help: "Episodes drained by the collector in episode order.", ConstLabels: labels,
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "decisions_total",
			Help: "Branching decisions by score source.", ConstLabels: labels,
		}, []string{SourceLabel}),
		SamplesStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "samples_staged_total",
			Help: "Expert samples written to the staging directory.", ConstLabels: labels,
		}),
		SamplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "samples_written_total",
			Help: "Samples promoted to their final dataset file.", ConstLabels: labels,
		}),
		SolverFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "solver_failures_total",
			Help: "Episodes cut short by a solver step failure.", ConstLabels: labels,
		}),
		SamplesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "samples_in_flight",
			Help: "Sample events received but not yet promoted.", ConstLabels: labels,
		}),
		BufferedEpisodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "buffered_episodes",
			Help: "Started episodes held by the collector awaiting their turn.", ConstLabels: labels,
		}),
		WorkQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "work_queue_depth",
			Help: "Orders waiting for a worker.", ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EpisodesStarted, m.EpisodesCompleted, m.Decisions,
			m.SamplesStaged, m.SamplesWritten, m.SolverFailures,
			m.SamplesInFlight, m.BufferedEpisodes, m.WorkQueueDepth,
		)
	}
	return m
}

func sourceName(isExpert bool) string {
	if isExpert {
		return "expert"
	}
	return "fallback"
}
