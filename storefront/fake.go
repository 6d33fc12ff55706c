package storefront

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-iap/core"
)

// PaymentScript scripts the transaction updates emitted for one payment.
// States are emitted in order, each as its own update batch. A failed state
// carries Error.
type PaymentScript struct {
	States []core.TransactionState
	Error  *core.PlatformError
}

// FakeStorefront is an in-process storefront for development and tests. It
// emits observer callbacks from its own goroutine, the way a platform
// payment queue does, and remembers purchased products so a restore can
// replay them.
type FakeStorefront struct {
	mu         sync.Mutex
	emitMu     sync.Mutex
	observer   core.TransactionObserver
	products   map[string]core.ProductDescriptor
	scripts    map[string][]PaymentScript
	queryErr   error
	restoreErr *core.PlatformError
	owned      []core.TransactionRecord
	unfinished map[string]core.TransactionRecord
	payments   []core.ProductDescriptor
	finalized  []core.TransactionRecord
	nextID     int
	pending    sync.WaitGroup
	Now        func() time.Time
}

func NewFakeStorefront(products ...core.ProductDescriptor) *FakeStorefront {
	fake := &FakeStorefront{
		products:   map[string]core.ProductDescriptor{},
		scripts:    map[string][]PaymentScript{},
		unfinished: map[string]core.TransactionRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, product := range products {
		id := strings.TrimSpace(product.ID)
		if id == "" {
			continue
		}
		product.ID = id
		fake.products[id] = cloneProduct(product)
	}
	return fake
}

// Attach sets the observer that receives transaction updates.
func (f *FakeStorefront) Attach(observer core.TransactionObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = observer
}

// ScriptPayment queues the outcome for the next payment of productID.
// Unscripted payments succeed.
func (f *FakeStorefront) ScriptPayment(productID string, script PaymentScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	productID = strings.TrimSpace(productID)
	f.scripts[productID] = append(f.scripts[productID], script)
}

func (f *FakeStorefront) FailQueries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// FailRestore makes subsequent restore sweeps end with err.
func (f *FakeStorefront) FailRestore(err *core.PlatformError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreErr = err
}

func (f *FakeStorefront) QueryProducts(_ context.Context, ids []string) (core.ProductQueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return core.ProductQueryResult{}, f.queryErr
	}
	result := core.ProductQueryResult{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if product, ok := f.products[id]; ok {
			result.Products = append(result.Products, cloneProduct(product))
			continue
		}
		result.InvalidIDs = append(result.InvalidIDs, id)
	}
	return result, nil
}

func (f *FakeStorefront) SubmitPayment(ctx context.Context, product core.ProductDescriptor) error {
	f.mu.Lock()
	if f.observer == nil {
		f.mu.Unlock()
		return fmt.Errorf("storefront: fake storefront has no observer attached")
	}
	f.payments = append(f.payments, cloneProduct(product))
	script := PaymentScript{States: []core.TransactionState{core.TransactionStatePurchasing, core.TransactionStatePurchased}}
	if queued := f.scripts[product.ID]; len(queued) > 0 {
		script = queued[0]
		f.scripts[product.ID] = queued[1:]
	}
	transactionID := f.nextTransactionIDLocked()
	batches := make([][]core.TransactionRecord, 0, len(script.States))
	for _, state := range script.States {
		record := core.TransactionRecord{
			ID:        transactionID,
			ProductID: product.ID,
			State:     state,
			Date:      f.now(),
			Quantity:  1,
		}
		if state == core.TransactionStateFailed {
			record.Error = script.Error
		}
		if state.Terminal() {
			f.unfinished[transactionID] = record
		}
		if state == core.TransactionStatePurchased {
			f.owned = append(f.owned, record)
		}
		batches = append(batches, []core.TransactionRecord{record})
	}
	observer := f.observer
	f.mu.Unlock()

	f.emit(func() {
		for _, batch := range batches {
			observer.OnTransactionsUpdated(context.WithoutCancel(ctx), batch)
		}
	})
	return nil
}

func (f *FakeStorefront) RestoreCompletedTransactions(ctx context.Context) error {
	f.mu.Lock()
	if f.observer == nil {
		f.mu.Unlock()
		return fmt.Errorf("storefront: fake storefront has no observer attached")
	}
	observer := f.observer
	restoreErr := f.restoreErr
	records := make([]core.TransactionRecord, 0, len(f.owned))
	if restoreErr == nil {
		for _, original := range f.owned {
			record := original
			record.ID = f.nextTransactionIDLocked()
			record.OriginalTransactionID = original.ID
			record.State = core.TransactionStateRestored
			f.unfinished[record.ID] = record
			records = append(records, record)
		}
	}
	f.mu.Unlock()

	f.emit(func() {
		eventCtx := context.WithoutCancel(ctx)
		if restoreErr != nil {
			observer.OnRestoreFailed(eventCtx, restoreErr)
			return
		}
		if len(records) > 0 {
			observer.OnTransactionsUpdated(eventCtx, records)
		}
		observer.OnRestoreCompleted(eventCtx)
	})
	return nil
}

func (f *FakeStorefront) FinalizeTransaction(_ context.Context, record core.TransactionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.unfinished[record.ID]; !ok {
		return fmt.Errorf("storefront: transaction %q is not awaiting finalization", record.ID)
	}
	delete(f.unfinished, record.ID)
	f.finalized = append(f.finalized, record)
	return nil
}

// Redeliver replays every terminal transaction that was never finalized, as a
// platform queue does when an app relaunches.
func (f *FakeStorefront) Redeliver(ctx context.Context) {
	f.mu.Lock()
	observer := f.observer
	records := make([]core.TransactionRecord, 0, len(f.unfinished))
	for _, record := range f.unfinished {
		records = append(records, record)
	}
	f.mu.Unlock()
	if observer == nil || len(records) == 0 {
		return
	}
	f.emit(func() {
		observer.OnTransactionsUpdated(context.WithoutCancel(ctx), records)
	})
}

// Wait blocks until every emitted callback has been delivered.
func (f *FakeStorefront) Wait() {
	f.pending.Wait()
}

func (f *FakeStorefront) Payments() []core.ProductDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.ProductDescriptor, 0, len(f.payments))
	for _, product := range f.payments {
		out = append(out, cloneProduct(product))
	}
	return out
}

func (f *FakeStorefront) Finalized() []core.TransactionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.TransactionRecord(nil), f.finalized...)
}

func (f *FakeStorefront) Unfinished() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unfinished)
}

// emit runs deliver on its own goroutine. emitMu keeps callbacks in
// submission order.
func (f *FakeStorefront) emit(deliver func()) {
	f.pending.Add(1)
	f.emitMu.Lock()
	go func() {
		defer f.pending.Done()
		defer f.emitMu.Unlock()
		deliver()
	}()
}

func (f *FakeStorefront) nextTransactionIDLocked() string {
	f.nextID++
	return fmt.Sprintf("fake_tx_%d", f.nextID)
}

func (f *FakeStorefront) now() time.Time {
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.Storefront = (*FakeStorefront)(nil)
