package core

import "context"

// Metric names emitted by the bridge. Operation metrics are built as
// iap.<operation>.total and iap.<operation>.duration_ms.
const (
	MetricTransactionsFinalized         = "iap.transactions.finalized"
	MetricTransactionsFinalizeFailed    = "iap.transactions.finalize_failed"
	MetricTransactionsFinalizeDuplicate = "iap.transactions.finalize_duplicate"
	MetricQueueEvents                   = "iap.queue.events"
	MetricQueueDuration                 = "iap.queue.duration_ms"
)

func operationMetric(operation string, suffix string) string {
	return "iap." + operation + "." + suffix
}

func routingMetric(routing string) string {
	return "iap.transactions." + routing
}

// NopMetricsRecorder discards every sample.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}
