package core

import (
	"context"
	"time"
)

// RestorePurchases asks the storefront to replay completed purchases and
// returns every restored transaction in arrival order. An empty slice means
// the sweep finished with nothing to restore.
func (b *Bridge) RestorePurchases(ctx context.Context) (results []PurchaseResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		b.observeOperation(ctx, startedAt, "restore_purchases", err, fields)
	}()

	if b == nil || b.storefront == nil {
		return nil, internalError("core: storefront is required", nil)
	}

	request := &restoreRequest{
		startedAt: b.now(),
		batch:     []TransactionRecord{},
		done:      newContinuation[[]PurchaseResult](),
	}
	b.mu.Lock()
	err = b.beginLocked(request)
	if err == nil {
		request.id = b.newRequestID()
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fields["request_id"] = request.id

	if restoreErr := b.storefront.RestoreCompletedTransactions(ctx); restoreErr != nil {
		failure := restoreFailedError(restoreErr)
		if b.rejectIfPending(request, failure) {
			return nil, failure
		}
	}
	results, err = request.done.wait(ctx)
	if err == nil {
		fields["restored_count"] = len(results)
	}
	return results, err
}

// OnRestoreCompleted resolves the pending restore with everything collected.
func (b *Bridge) OnRestoreCompleted(ctx context.Context) {
	if b == nil {
		return
	}
	b.mu.Lock()
	request, ok := b.pending.(*restoreRequest)
	if !ok {
		b.mu.Unlock()
		b.logInfo(ctx, "restore completed ignored", map[string]any{
			"bridge": b.config.BridgeName,
			"reason": "no pending restore",
		})
		return
	}
	b.clearLocked(request)
	results := request.flush()
	request.done.resolve(results)
	b.mu.Unlock()
}

// OnRestoreFailed rejects the pending restore and discards its batch.
func (b *Bridge) OnRestoreFailed(ctx context.Context, platformErr *PlatformError) {
	if b == nil {
		return
	}
	var source error
	if platformErr != nil {
		source = platformErr
	}
	b.mu.Lock()
	request, ok := b.pending.(*restoreRequest)
	if !ok {
		b.mu.Unlock()
		fields := map[string]any{
			"bridge": b.config.BridgeName,
			"reason": "no pending restore",
		}
		if source != nil {
			fields["error"] = source.Error()
		}
		b.logInfo(ctx, "restore failure ignored", fields)
		return
	}
	b.clearLocked(request)
	request.rejectWith(restoreFailedError(source))
	b.mu.Unlock()
}

// routeRestoreLocked collects restored transactions. Callers hold mu.
func (b *Bridge) routeRestoreLocked(request *restoreRequest, record TransactionRecord) routeDecision {
	if record.State != TransactionStateRestored {
		return ignoreDecision(record, "not a restored transaction")
	}
	for _, existing := range request.batch {
		if record.ID != "" && existing.ID == record.ID {
			return routeDecision{
				finalize: true,
				routing:  routingRestored,
				reason:   "already in restore batch",
			}
		}
	}
	request.batch = append(request.batch, record)
	return routeDecision{
		finalize: true,
		routing:  routingRestored,
		reason:   "added to restore batch",
	}
}
