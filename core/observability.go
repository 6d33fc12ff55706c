package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// observeOperation emits the total counter, the duration histogram and one
// log line for a finished purchase, restore or products call.
func (b *Bridge) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if b == nil {
		return
	}
	operation = strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if operation == "" {
		operation = "unknown"
	}
	elapsed := time.Since(startedAt)
	status := "success"
	if err != nil {
		status = "failure"
	}

	logged := cloneFields(fields)
	logged["bridge"] = b.config.BridgeName
	logged["event_type"] = operation
	logged["status"] = status
	logged["duration_ms"] = elapsed.Milliseconds()

	tags := map[string]string{"operation": operation, "status": status}
	if productID, ok := fields["product_id"].(string); ok && strings.TrimSpace(productID) != "" {
		tags["product_id"] = productID
	}
	if err != nil {
		logged["error"] = err.Error()
		if code := TextCode(err); code != "" {
			logged["error_code"] = code
			tags["error_code"] = code
		}
	}

	b.count(ctx, operationMetric(operation, "total"), tags)
	b.observe(ctx, operationMetric(operation, "duration_ms"), float64(elapsed.Milliseconds()), tags)
	if err != nil {
		b.logError(ctx, operation+" failed", logged)
		return
	}
	b.logInfo(ctx, operation+" succeeded", logged)
}

// observeRouting records what the observer did with one transaction.
func (b *Bridge) observeRouting(ctx context.Context, record TransactionRecord, routing string, reason string) {
	if b == nil {
		return
	}
	b.count(ctx, routingMetric(routing), map[string]string{
		"state":   string(record.State),
		"routing": routing,
	})
	b.logInfo(ctx, "transaction "+routing, map[string]any{
		"bridge":         b.config.BridgeName,
		"transaction_id": record.ID,
		"product_id":     record.ProductID,
		"state":          string(record.State),
		"routing":        routing,
		"reason":         reason,
	})
}

func (b *Bridge) logInfo(ctx context.Context, message string, fields map[string]any) {
	b.emitLog(ctx, message, fields, Logger.Info)
}

func (b *Bridge) logWarn(ctx context.Context, message string, fields map[string]any) {
	b.emitLog(ctx, message, fields, Logger.Warn)
}

func (b *Bridge) logError(ctx context.Context, message string, fields map[string]any) {
	b.emitLog(ctx, message, fields, Logger.Error)
}

// emitLog attaches fields through WithFields when the logger supports it and
// always repeats them as sorted key/value args.
func (b *Bridge) emitLog(ctx context.Context, message string, fields map[string]any, write func(Logger, string, ...any)) {
	if b == nil || b.logger == nil {
		return
	}
	logger := b.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(cloneFields(fields))
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	write(logger, message, args...)
}

func (b *Bridge) count(ctx context.Context, name string, tags map[string]string) {
	if b == nil || b.metricsRecorder == nil {
		return
	}
	b.metricsRecorder.IncCounter(ctx, name, 1, cloneTags(tags))
}

func (b *Bridge) observe(ctx context.Context, name string, value float64, tags map[string]string) {
	if b == nil || b.metricsRecorder == nil {
		return
	}
	b.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+4)
	maps.Copy(out, fields)
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		if key != "" {
			out[key] = value
		}
	}
	return out
}
