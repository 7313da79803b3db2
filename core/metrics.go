package core

import "context"

// NopMetricsRecorder discards every measurement. It is the default recorder,
// so deployments without a metrics backend still run the full lifecycle with
// no instrumentation wiring.
//
// Instrumented operations emit a `ledgerlink.<operation>.total` counter and a
// `ledgerlink.<operation>.duration_ms` histogram, tagged with the operation,
// outcome status, credential key and refresh trigger where available.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
