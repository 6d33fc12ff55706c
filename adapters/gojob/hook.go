package gojob

import (
	"context"
	"strings"

	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// WorkerHook reports go-job worker lifecycle events for transaction event
// jobs through the bridge's logger and metrics recorder. Other jobs sharing
// the worker are ignored.
type WorkerHook struct {
	logger  glog.Logger
	metrics core.MetricsRecorder
}

func NewWorkerHook(logger glog.Logger, metrics core.MetricsRecorder) *WorkerHook {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &WorkerHook{logger: glog.Ensure(logger), metrics: metrics}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.observe(ctx, "start", event)
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.observe(ctx, "success", event)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.observe(ctx, "failure", event)
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.observe(ctx, "retry", event)
}

func (h *WorkerHook) observe(ctx context.Context, phase string, event worker.Event) {
	if h == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil || strings.TrimSpace(message.JobID) != JobIDTransactionEvent {
		return
	}

	kind, _ := message.Parameters[paramKind].(string)
	tags := map[string]string{"phase": phase, "event_kind": kind}
	h.metrics.IncCounter(ctx, core.MetricQueueEvents, 1, tags)
	if event.Duration > 0 {
		h.metrics.ObserveHistogram(ctx, core.MetricQueueDuration, float64(event.Duration.Milliseconds()), tags)
	}

	fields := []any{"phase", phase, "event_kind", kind, "attempt", event.Attempt}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
		h.logger.Warn("transaction event job", fields...)
		return
	}
	h.logger.Debug("transaction event job", fields...)
}
