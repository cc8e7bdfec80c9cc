// Package metrics provides the Prometheus-backed observer.MetricsRecorder
// used by the sandbox runner and the session.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records compile, run, and verdict counts and durations to
// Prometheus. Register it against a registry once at startup; it is safe for
// concurrent use by many goroutines, same as any prometheus collector.
type Recorder struct {
	compileTotal    *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	runTotal        *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	verdictTotal    *prometheus.CounterVec
}

// NewRecorder builds a Recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		compileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judgeworker_compile_total",
			Help: "Compile attempts by language and outcome.",
		}, []string{"language", "ok"}),
		compileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judgeworker_compile_duration_ms",
			Help:    "Compile duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"language"}),
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judgeworker_run_total",
			Help: "Sandbox runs by language and status.",
		}, []string{"language", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judgeworker_run_duration_ms",
			Help:    "Sandbox run duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"language"}),
		verdictTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judgeworker_verdict_total",
			Help: "Verdicts emitted to the master, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(r.compileTotal, r.compileDuration, r.runTotal, r.runDuration, r.verdictTotal)
	return r
}

func (r *Recorder) ObserveCompile(_ context.Context, languageID string, ok bool, timeMs int64) {
	r.compileTotal.WithLabelValues(languageID, boolLabel(ok)).Inc()
	r.compileDuration.WithLabelValues(languageID).Observe(float64(timeMs))
}

func (r *Recorder) ObserveRun(_ context.Context, languageID string, status string, timeMs int64, _ int64) {
	if status == "" {
		status = "clean"
	}
	r.runTotal.WithLabelValues(languageID, status).Inc()
	r.runDuration.WithLabelValues(languageID).Observe(float64(timeMs))
}

func (r *Recorder) ObserveVerdict(_ context.Context, verdictKind string) {
	r.verdictTotal.WithLabelValues(verdictKind).Inc()
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
