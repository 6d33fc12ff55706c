package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubStorefront struct {
	mu         sync.Mutex
	products   map[string]ProductDescriptor
	queryErr   error
	submitErr  error
	restoreErr error
	// finalizeFailures makes the next N FinalizeTransaction calls fail.
	finalizeFailures int

	queries   [][]string
	payments  []ProductDescriptor
	restores  int
	finalized []TransactionRecord

	onQuery   func(ids []string)
	onSubmit  func(product ProductDescriptor)
	onRestore func()
	submitted chan ProductDescriptor
}

func newStubStorefront(products ...ProductDescriptor) *stubStorefront {
	store := &stubStorefront{
		products:  map[string]ProductDescriptor{},
		submitted: make(chan ProductDescriptor, 16),
	}
	for _, product := range products {
		store.products[product.ID] = product
	}
	return store
}

func (s *stubStorefront) QueryProducts(_ context.Context, ids []string) (ProductQueryResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, append([]string(nil), ids...))
	queryErr := s.queryErr
	onQuery := s.onQuery
	result := ProductQueryResult{}
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result.Products = append(result.Products, product)
			continue
		}
		result.InvalidIDs = append(result.InvalidIDs, id)
	}
	s.mu.Unlock()

	if onQuery != nil {
		onQuery(ids)
	}
	if queryErr != nil {
		return ProductQueryResult{}, queryErr
	}
	return result, nil
}

func (s *stubStorefront) SubmitPayment(_ context.Context, product ProductDescriptor) error {
	s.mu.Lock()
	s.payments = append(s.payments, product)
	submitErr := s.submitErr
	onSubmit := s.onSubmit
	s.mu.Unlock()

	if submitErr != nil {
		return submitErr
	}
	s.submitted <- product
	if onSubmit != nil {
		onSubmit(product)
	}
	return nil
}

func (s *stubStorefront) RestoreCompletedTransactions(context.Context) error {
	s.mu.Lock()
	s.restores++
	restoreErr := s.restoreErr
	onRestore := s.onRestore
	s.mu.Unlock()

	if restoreErr != nil {
		return restoreErr
	}
	if onRestore != nil {
		onRestore()
	}
	return nil
}

func (s *stubStorefront) FinalizeTransaction(_ context.Context, record TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeFailures > 0 {
		s.finalizeFailures--
		return errors.New("finalize unavailable")
	}
	s.finalized = append(s.finalized, record)
	return nil
}

func (s *stubStorefront) finalizedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.finalized))
	for _, record := range s.finalized {
		ids = append(ids, record.ID)
	}
	return ids
}

func (s *stubStorefront) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *stubStorefront) restoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restores
}

func (s *stubStorefront) waitForPayment(t *testing.T) ProductDescriptor {
	t.Helper()
	select {
	case product := <-s.submitted:
		return product
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for payment submission")
		return ProductDescriptor{}
	}
}

func testProduct(id string) ProductDescriptor {
	return ProductDescriptor{
		ID:             id,
		Title:          "Coins " + id,
		Price:          "0.99",
		PriceLocale:    "en_US@currency=USD",
		LocalizedPrice: "$0.99",
		CurrencyCode:   "USD",
	}
}

func purchased(id string, productID string) TransactionRecord {
	return TransactionRecord{
		ID:        id,
		ProductID: productID,
		State:     TransactionStatePurchased,
		Date:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Quantity:  1,
	}
}

func restored(id string, productID string) TransactionRecord {
	record := purchased(id, productID)
	record.State = TransactionStateRestored
	record.OriginalTransactionID = "orig_" + id
	return record
}

func failed(id string, productID string, code PlatformErrorCode) TransactionRecord {
	return TransactionRecord{
		ID:        id,
		ProductID: productID,
		State:     TransactionStateFailed,
		Error:     &PlatformError{Code: code, Domain: "SKErrorDomain", Message: code.Reason()},
	}
}

func withState(record TransactionRecord, state TransactionState) TransactionRecord {
	record.State = state
	return record
}

func newTestBridge(t *testing.T, store Storefront, opts ...Option) *Bridge {
	t.Helper()
	// the generator runs under the bridge lock
	counter := 0
	base := []Option{
		WithRequestIDGenerator(func() string {
			counter++
			return fmt.Sprintf("req_%d", counter)
		}),
	}
	bridge, err := NewBridge(store, Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return bridge
}

type purchaseOutcome struct {
	result PurchaseResult
	err    error
}

func startPurchase(ctx context.Context, bridge *Bridge, productID string) <-chan purchaseOutcome {
	done := make(chan purchaseOutcome, 1)
	go func() {
		result, err := bridge.Purchase(ctx, productID)
		done <- purchaseOutcome{result: result, err: err}
	}()
	return done
}

type restoreOutcome struct {
	results []PurchaseResult
	err     error
}

func startRestore(ctx context.Context, bridge *Bridge) <-chan restoreOutcome {
	done := make(chan restoreOutcome, 1)
	go func() {
		results, err := bridge.RestorePurchases(ctx)
		done <- restoreOutcome{results: results, err: err}
	}()
	return done
}

func awaitOutcome[T any](t *testing.T, done <-chan T) T {
	t.Helper()
	select {
	case outcome := <-done:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outcome")
		var zero T
		return zero
	}
}

func assertStillWaiting[T any](t *testing.T, done <-chan T) {
	t.Helper()
	select {
	case outcome := <-done:
		t.Fatalf("expected caller to still be waiting, got %#v", outcome)
	case <-time.After(30 * time.Millisecond):
	}
}

func waitForPending(t *testing.T, bridge *Bridge, kind RequestKind) PendingSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snapshot := bridge.Pending(); snapshot.Kind == kind {
			return snapshot
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for pending %s request", kind)
	return PendingSnapshot{}
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

func withCaptureLogger(logger *captureLogger) Option {
	return func(b *bridgeBuilder) {
		WithLoggerProvider(stubLoggerProvider{logger: logger})(b)
		WithLogger(logger)(b)
	}
}
