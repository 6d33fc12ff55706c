package core

import (
	"context"
	"strings"
	"time"
)

// Purchase buys productID and waits for the storefront's verdict. Only one
// purchase or restore may be in flight per bridge; a second call fails with a
// busy error instead of queueing.
func (b *Bridge) Purchase(ctx context.Context, productID string) (result PurchaseResult, err error) {
	startedAt := time.Now().UTC()
	productID = strings.TrimSpace(productID)
	fields := map[string]any{"product_id": productID}
	defer func() {
		b.observeOperation(ctx, startedAt, "purchase", err, fields)
	}()

	if b == nil || b.storefront == nil {
		return PurchaseResult{}, internalError("core: storefront is required", nil)
	}
	if productID == "" {
		return PurchaseResult{}, badInputError("core: product id is required", nil)
	}

	request := &purchaseRequest{
		productID: productID,
		stage:     PurchaseStageQueryingProduct,
		startedAt: b.now(),
		done:      newContinuation[PurchaseResult](),
	}
	b.mu.Lock()
	err = b.beginLocked(request)
	if err == nil {
		request.id = b.newRequestID()
	}
	b.mu.Unlock()
	if err != nil {
		return PurchaseResult{}, err
	}
	fields["request_id"] = request.id

	product, err := b.queryProduct(ctx, productID)
	if err != nil {
		if b.rejectIfPending(request, err) {
			return PurchaseResult{}, err
		}
		return request.done.wait(ctx)
	}

	b.mu.Lock()
	if b.pending != pendingRequest(request) {
		// closed while the query was in flight
		b.mu.Unlock()
		return request.done.wait(ctx)
	}
	request.stage = PurchaseStageAwaitingPayment
	b.mu.Unlock()

	if submitErr := b.storefront.SubmitPayment(ctx, product); submitErr != nil {
		failure := submitPaymentFailedError(submitErr, productID)
		if b.rejectIfPending(request, failure) {
			return PurchaseResult{}, failure
		}
	}
	return request.done.wait(ctx)
}

// routePurchaseLocked decides what a transaction means for the pending
// purchase. Callers hold mu.
func (b *Bridge) routePurchaseLocked(request *purchaseRequest, record TransactionRecord) routeDecision {
	if strings.TrimSpace(record.ProductID) != request.productID {
		return ignoreDecision(record, "product does not match pending purchase")
	}
	if !request.awaitingPayment() {
		return ignoreDecision(record, "payment not submitted yet")
	}

	switch record.State {
	case TransactionStatePurchased:
		b.clearLocked(request)
		result := purchaseResultFrom(record)
		return routeDecision{
			finalize: true,
			routing:  routingMatched,
			reason:   "purchase completed",
			settle: func() {
				request.done.resolve(result)
			},
		}
	case TransactionStateFailed:
		b.clearLocked(request)
		var failure error
		if record.Error.Cancelled() {
			failure = userCancelledError(record)
		} else {
			failure = purchaseFailedError(record)
		}
		return routeDecision{
			finalize: true,
			routing:  routingMatched,
			reason:   "purchase failed",
			settle: func() {
				request.done.reject(failure)
			},
		}
	case TransactionStateDeferred:
		return routeDecision{routing: routingDeferred, reason: "awaiting external approval"}
	case TransactionStatePurchasing:
		return routeDecision{routing: routingInProgress, reason: "payment in progress"}
	default:
		return ignoreDecision(record, "restored transaction during purchase")
	}
}

func (b *Bridge) rejectIfPending(current pendingRequest, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clearLocked(current) {
		return false
	}
	current.rejectWith(err)
	return true
}
