// Package metrics records ranking and augmentation activity in a Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spigell/property-matcher/internal/matching"
)

// Recorder implements matching.Observer on its own registry, so several runs or
// tests never share counters.
type Recorder struct {
	registry *prometheus.Registry

	CandidatesScored   *prometheus.CounterVec
	CandidatesRejected *prometheus.CounterVec
	RankingDuration    *prometheus.HistogramVec
	RankingResults     *prometheus.GaugeVec
	Augmentations      *prometheus.CounterVec
}

var _ matching.Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		CandidatesScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "property_matcher_candidates_scored_total",
				Help: "Total number of candidates scored, by direction and tier",
			},
			[]string{"direction", "tier"},
		),
		CandidatesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "property_matcher_candidates_rejected_total",
				Help: "Total number of malformed candidates skipped during ranking",
			},
			[]string{"direction"},
		),
		RankingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "property_matcher_ranking_duration_seconds",
				Help:    "Duration of one ranking run in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"direction"},
		),
		RankingResults: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "property_matcher_ranking_results",
				Help: "Number of results returned by the last ranking run",
			},
			[]string{"direction"},
		),
		Augmentations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "property_matcher_augmentations_total",
				Help: "Augmentation attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (r *Recorder) ObserveScored(direction matching.Direction, tier matching.Tier) {
	r.CandidatesScored.WithLabelValues(string(direction), string(tier)).Inc()
}

func (r *Recorder) ObserveRejected(direction matching.Direction, _ string) {
	r.CandidatesRejected.WithLabelValues(string(direction)).Inc()
}

func (r *Recorder) ObserveRanking(direction matching.Direction, elapsed time.Duration, _ int, returned int) {
	r.RankingDuration.WithLabelValues(string(direction)).Observe(elapsed.Seconds())
	r.RankingResults.WithLabelValues(string(direction)).Set(float64(returned))
}

// ObserveAugmentation counts one augmentation outcome.
func (r *Recorder) ObserveAugmentation(available bool) {
	outcome := "unavailable"
	if available {
		outcome = "available"
	}
	r.Augmentations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
