package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewBridge_RequiresStorefront(t *testing.T) {
	if _, err := NewBridge(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil storefront")
	}
}

func TestBridgeClose_RejectsPendingAndRefusesNewRequests(t *testing.T) {
	store := newStubStorefront(testProduct("coins_100"))
	bridge := newTestBridge(t, store)
	ctx := context.Background()

	done := startPurchase(ctx, bridge, "coins_100")
	store.waitForPayment(t)

	if err := bridge.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	outcome := awaitOutcome(t, done)
	if !IsBridgeClosed(outcome.err) {
		t.Fatalf("expected bridge closed, got %v", outcome.err)
	}
	if _, err := bridge.Purchase(ctx, "coins_100"); !IsBridgeClosed(err) {
		t.Fatalf("expected closed bridge to refuse purchase, got %v", err)
	}
	if _, err := bridge.RestorePurchases(ctx); !IsBridgeClosed(err) {
		t.Fatalf("expected closed bridge to refuse restore, got %v", err)
	}

	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{purchased("tx_after", "coins_100")})
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_after"}) {
		t.Fatalf("expected transactions after close finalized, got %v", got)
	}
	if err := bridge.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestBridge_DuplicateDeliveryIsFinalizedOnce(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	store := newStubStorefront()
	bridge := newTestBridge(t, store, WithMetricsRecorder(metrics))
	ctx := context.Background()

	record := purchased("tx_dup", "coins_100")
	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{record, record})
	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{record})

	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_dup"}) {
		t.Fatalf("expected single finalize, got %v", got)
	}
	if !hasCounterNamed(metrics.counterSnapshot(), "iap.transactions.finalize_duplicate") {
		t.Fatalf("expected duplicate counter")
	}
}

func TestBridge_FailedFinalizeIsRetriedOnRedelivery(t *testing.T) {
	store := newStubStorefront()
	store.finalizeFailures = 1
	bridge := newTestBridge(t, store)
	ctx := context.Background()

	record := purchased("tx_retry", "coins_100")
	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{record})
	if len(store.finalizedIDs()) != 0 {
		t.Fatalf("expected first finalize to fail")
	}
	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{record})
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_retry"}) {
		t.Fatalf("expected redelivery to finalize, got %v", got)
	}
}

func TestBridgeDeliver_ReportsFinalizeFailureForRedelivery(t *testing.T) {
	store := newStubStorefront()
	store.finalizeFailures = 1
	bridge := newTestBridge(t, store)
	ctx := context.Background()

	event := TransactionEvent{
		Kind:         TransactionEventUpdated,
		Transactions: []TransactionRecord{purchased("tx_fail", "coins_100"), purchased("tx_ok", "coins_500")},
	}
	err := bridge.Deliver(ctx, event)
	if !IsFinalizeFailed(err) {
		t.Fatalf("expected finalize failed error, got %v", err)
	}
	if TextCode(err) == BridgeErrorBadInput {
		t.Fatalf("finalize failures must not read as bad input")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if ids, _ := rich.Metadata["transaction_ids"].([]string); !reflect.DeepEqual(ids, []string{"tx_fail"}) {
		t.Fatalf("expected failed transaction ids, got %#v", rich.Metadata)
	}
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_ok"}) {
		t.Fatalf("expected only tx_ok finalized, got %v", got)
	}

	if err := bridge.Deliver(ctx, event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_ok", "tx_fail"}) {
		t.Fatalf("expected redelivery to finalize tx_fail once, got %v", got)
	}
}

func TestBridgeOnTransactionsUpdated_SwallowsFinalizeFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	store := newStubStorefront()
	store.finalizeFailures = 1
	bridge := newTestBridge(t, store, WithMetricsRecorder(metrics))

	bridge.OnTransactionsUpdated(context.Background(), []TransactionRecord{purchased("tx_1", "coins_100")})
	if !hasCounterNamed(metrics.counterSnapshot(), MetricTransactionsFinalizeFailed) {
		t.Fatalf("expected finalize failed counter")
	}
}

func TestBridge_RedeliveredPurchaseDoesNotSettleNewRequest(t *testing.T) {
	store := newStubStorefront(testProduct("coins_100"))
	bridge := newTestBridge(t, store)
	ctx := context.Background()

	if err := bridge.Deliver(ctx, TransactionEvent{
		Kind:         TransactionEventUpdated,
		Transactions: []TransactionRecord{purchased("tx_old", "coins_100")},
	}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	done := startPurchase(ctx, bridge, "coins_100")
	store.waitForPayment(t)

	if err := bridge.Deliver(ctx, TransactionEvent{
		Kind:         TransactionEventUpdated,
		Transactions: []TransactionRecord{purchased("tx_old", "coins_100")},
	}); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	assertStillWaiting(t, done)

	bridge.OnTransactionsUpdated(ctx, []TransactionRecord{purchased("tx_new", "coins_100")})
	if outcome := awaitOutcome(t, done); outcome.err != nil || outcome.result.TransactionID != "tx_new" {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{"tx_old", "tx_new"}) {
		t.Fatalf("expected each transaction finalized once, got %v", got)
	}
}

func TestBridge_NonTerminalAndUnknownStatesAreNotFinalized(t *testing.T) {
	logger := newCaptureLogger()
	store := newStubStorefront()
	bridge := newTestBridge(t, store, withCaptureLogger(logger))

	bridge.OnTransactionsUpdated(context.Background(), []TransactionRecord{
		withState(purchased("tx_1", "coins_100"), TransactionStatePurchasing),
		withState(purchased("tx_2", "coins_100"), TransactionStateDeferred),
		withState(purchased("tx_3", "coins_100"), TransactionState("refunded")),
	})
	if got := store.finalizedIDs(); len(got) != 0 {
		t.Fatalf("expected nothing finalized, got %v", got)
	}

	found := false
	for _, item := range logger.snapshot() {
		if item.level == "warn" && item.msg == "transaction with unknown state skipped" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unknown state warning")
	}
}

func TestBridge_TransactionWithoutIDIsStillFinalized(t *testing.T) {
	store := newStubStorefront()
	bridge := newTestBridge(t, store)

	bridge.OnTransactionsUpdated(context.Background(), []TransactionRecord{purchased("", "coins_100")})
	if got := store.finalizedIDs(); !reflect.DeepEqual(got, []string{""}) {
		t.Fatalf("expected id-less transaction finalized, got %v", got)
	}
}

func TestBridgeDeliver_ReplaysObserverEvents(t *testing.T) {
	store := newStubStorefront()
	bridge := newTestBridge(t, store)
	ctx := context.Background()

	done := startRestore(ctx, bridge)
	waitForPending(t, bridge, RequestKindRestore)

	if err := bridge.Deliver(ctx, TransactionEvent{
		Kind:         TransactionEventUpdated,
		Transactions: []TransactionRecord{restored("tx_a", "no_ads")},
	}); err != nil {
		t.Fatalf("deliver update: %v", err)
	}
	if err := bridge.Deliver(ctx, TransactionEvent{Kind: TransactionEventRestoreComplete}); err != nil {
		t.Fatalf("deliver completion: %v", err)
	}
	outcome := awaitOutcome(t, done)
	if outcome.err != nil || len(outcome.results) != 1 {
		t.Fatalf("unexpected outcome %#v", outcome)
	}

	err := bridge.Deliver(ctx, TransactionEvent{Kind: "bogus"})
	if TextCode(err) != BridgeErrorBadInput {
		t.Fatalf("expected bad input for unknown kind, got %v", err)
	}
}

func TestBridgeProducts_NormalizesAndQueries(t *testing.T) {
	store := newStubStorefront(testProduct("coins_100"), testProduct("coins_500"))
	bridge := newTestBridge(t, store)

	result, err := bridge.Products(context.Background(), []string{" coins_100", "coins_500", "coins_100", "nope"})
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(result.Products) != 2 {
		t.Fatalf("expected two products, got %#v", result.Products)
	}
	if !reflect.DeepEqual(result.InvalidIDs, []string{"nope"}) {
		t.Fatalf("expected invalid ids, got %v", result.InvalidIDs)
	}
	if !reflect.DeepEqual(store.queries[0], []string{"coins_100", "coins_500", "nope"}) {
		t.Fatalf("expected deduplicated query, got %v", store.queries[0])
	}
	if !bridge.Pending().Idle() {
		t.Fatalf("products must not occupy the bridge")
	}
}

func TestBridgeProducts_RejectsBadInput(t *testing.T) {
	bridge := newTestBridge(t, newStubStorefront(), WithConfigProvider(NewCfgxConfigProvider(StaticRawConfigLoader{
		Values: map[string]any{"products": map[string]any{"max_query_ids": 2}},
	})))

	cases := map[string][]string{
		"empty":    nil,
		"blank":    {"coins_100", " "},
		"too many": {"a", "b", "c"},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := bridge.Products(context.Background(), ids)
			if TextCode(err) != BridgeErrorBadInput {
				t.Fatalf("expected bad input, got %v", err)
			}
		})
	}
}

func TestBridgeProducts_WrapsStorefrontFailure(t *testing.T) {
	store := newStubStorefront()
	store.queryErr = errors.New("timeout")
	bridge := newTestBridge(t, store)

	_, err := bridge.Products(context.Background(), []string{"coins_100"})
	if !IsProductQueryFailed(err) {
		t.Fatalf("expected product query failed, got %v", err)
	}
}
