// Package metrics records enrichment outcomes with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metadata_enricher"

// Recorder holds the enrichment collectors. A nil *Recorder records nothing.
type Recorder struct {
	results  *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Enrichment invocations by terminal status",
			},
			[]string{"status"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Network attempts by stage",
			},
			[]string{"stage"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "duration_seconds",
				Help:      "Enrichment invocation duration",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"status"},
		),
	}
}

// ObserveResult counts one finished invocation.
func (r *Recorder) ObserveResult(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.results.WithLabelValues(status).Inc()
	r.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveAttempt counts one network attempt of stage (auth or fetch).
func (r *Recorder) ObserveAttempt(stage string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(stage).Inc()
}
