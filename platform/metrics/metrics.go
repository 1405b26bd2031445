// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealer_coach"

var (
	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome (ok, empty, error).",
	}, []string{"outcome"})
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"stage"})
	collaboratorCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "textgen",
		Name:      "calls_total",
		Help:      "Text generation calls by stage and outcome.",
	}, []string{"stage", "outcome"})
	targetingFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "targeting",
		Name:      "fallbacks_total",
		Help:      "Delegated targeting runs that fell back to the deterministic policy.",
	})
	dispatchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "results_total",
		Help:      "Per-recipient dispatch results.",
	}, []string{"outcome"})
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "approval",
		Name:      "active_sessions",
		Help:      "Review sessions not yet dispatched.",
	})
)

func init() {
	prometheus.MustRegister(
		pipelineRuns,
		stageDuration,
		collaboratorCalls,
		targetingFallbacks,
		dispatchResults,
		activeSessions,
	)
}

// RecordPipelineRun counts one run.
func RecordPipelineRun(outcome string) {
	pipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordCollaboratorCall counts a text generation call.
func RecordCollaboratorCall(stage, outcome string) {
	collaboratorCalls.WithLabelValues(stage, outcome).Inc()
}

// RecordTargetingFallback counts a fallback to deterministic targeting.
func RecordTargetingFallback() {
	targetingFallbacks.Inc()
}

// RecordDispatch counts one recipient result.
func RecordDispatch(success bool) {
	outcome := "failed"
	if success {
		outcome = "sent"
	}
	dispatchResults.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
