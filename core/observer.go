package core

import (
	"context"
	"errors"
	"strings"
)

const (
	routingMatched    = "matched"
	routingRestored   = "restored"
	routingDeferred   = "deferred"
	routingInProgress = "in_progress"
	routingIgnored    = "ignored"
)

type routeDecision struct {
	finalize bool
	routing  string
	reason   string
	// settle runs after finalization, outside the lock.
	settle func()
}

func ignoreDecision(record TransactionRecord, reason string) routeDecision {
	return routeDecision{
		finalize: record.State.Terminal(),
		routing:  routingIgnored,
		reason:   reason,
	}
}

// OnTransactionsUpdated routes a batch of storefront updates in order. Every
// terminal transaction is finalized once, whether or not a caller was
// waiting for it.
func (b *Bridge) OnTransactionsUpdated(ctx context.Context, records []TransactionRecord) {
	if b == nil {
		return
	}
	// Finalize failures are logged and counted. The storefront redelivers
	// unacknowledged transactions.
	_ = b.deliverTransactions(ctx, records)
}

// deliverTransactions routes records like OnTransactionsUpdated and reports
// the transactions that could not be finalized.
func (b *Bridge) deliverTransactions(ctx context.Context, records []TransactionRecord) error {
	var (
		failedIDs []string
		causes    []error
	)
	for _, record := range records {
		if err := b.handleTransaction(ctx, record); err != nil {
			failedIDs = append(failedIDs, strings.TrimSpace(record.ID))
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return nil
	}
	return finalizeFailedError(errors.Join(causes...), failedIDs)
}

func (b *Bridge) handleTransaction(ctx context.Context, record TransactionRecord) error {
	record.ID = strings.TrimSpace(record.ID)
	record.ProductID = strings.TrimSpace(record.ProductID)
	if !record.State.Valid() {
		b.logWarn(ctx, "transaction with unknown state skipped", map[string]any{
			"bridge":         b.config.BridgeName,
			"transaction_id": record.ID,
			"product_id":     record.ProductID,
			"state":          string(record.State),
		})
		return nil
	}

	// An acknowledged purchase must not settle a later request. Restored
	// records keep their ids across restores and are still collected.
	claim := b.claimFinalization(ctx, record)
	if claim.duplicate && record.State != TransactionStateRestored {
		b.observeRouting(ctx, record, routingIgnored, "already finalized")
		return nil
	}

	b.mu.Lock()
	decision := b.routeLocked(record)
	b.mu.Unlock()

	var err error
	if decision.finalize {
		err = b.finalize(ctx, record, claim)
	} else {
		b.releaseClaim(ctx, record, claim, nil)
	}
	if decision.settle != nil {
		decision.settle()
	}
	b.observeRouting(ctx, record, decision.routing, decision.reason)
	return err
}

// routeLocked dispatches on the pending request variant. Callers hold mu.
func (b *Bridge) routeLocked(record TransactionRecord) routeDecision {
	switch pending := b.pending.(type) {
	case *purchaseRequest:
		return b.routePurchaseLocked(pending, record)
	case *restoreRequest:
		return b.routeRestoreLocked(pending, record)
	default:
		return ignoreDecision(record, "no pending request")
	}
}
