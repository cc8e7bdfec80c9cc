// Package observer defines the metrics hooks for the compile/run
// pipeline, kept separate from the pipeline itself so tests can swap in a
// no-op implementation.
package observer

import "context"

// MetricsRecorder records compile, run, and verdict metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64)
	ObserveRun(ctx context.Context, languageID string, status string, timeMs int64, memKB int64)
	ObserveVerdict(ctx context.Context, verdictKind string)
}

// NoopMetricsRecorder discards everything. Used when metrics are disabled or
// in tests that don't care about observability.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(context.Context, string, bool, int64)      {}
func (NoopMetricsRecorder) ObserveRun(context.Context, string, string, int64, int64) {}
func (NoopMetricsRecorder) ObserveVerdict(context.Context, string)                   {}
