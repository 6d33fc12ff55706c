package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-iap/core"
	sqlstore "github.com/goliatone/go-iap/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestOpen_MigratesSQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"iap_finalization_ledger",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "iap_finalization_ledger" {
		t.Fatalf("expected ledger table, got %q", tableName)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.DBConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.DBConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestFinalizationLedger_ClaimCompleteAndExpire(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	clock := newFakeClock()
	ledger := newLedger(t, client, sqlstore.WithClock(clock.Now))

	claimID, accepted, err := ledger.Claim(ctx, "tx_1", time.Hour)
	if err != nil || !accepted || claimID == "" {
		t.Fatalf("expected first claim accepted, got %q %v %v", claimID, accepted, err)
	}
	if _, accepted, err := ledger.Claim(ctx, "tx_1", time.Hour); err != nil || accepted {
		t.Fatalf("expected concurrent claim rejected, got %v %v", accepted, err)
	}
	if err := ledger.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, accepted, _ := ledger.Claim(ctx, "tx_1", time.Hour); accepted {
		t.Fatalf("expected completed transaction rejected inside ttl")
	}

	entry, ok, err := ledger.Entry(ctx, "tx_1")
	if err != nil || !ok {
		t.Fatalf("entry: %v %v", ok, err)
	}
	if entry.Status != "complete" || entry.Attempts != 1 {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expected expiry one hour out, got %s", entry.ExpiresAt)
	}

	clock.Advance(2 * time.Hour)
	if _, accepted, err := ledger.Claim(ctx, "tx_1", time.Hour); err != nil || !accepted {
		t.Fatalf("expected claim after expiry accepted, got %v %v", accepted, err)
	}
}

func TestFinalizationLedger_FailReleasesClaim(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ledger := newLedger(t, client)

	claimID, accepted, err := ledger.Claim(ctx, "tx_fail", time.Hour)
	if err != nil || !accepted {
		t.Fatalf("claim: %v %v", accepted, err)
	}
	if err := ledger.Fail(ctx, claimID, errors.New("storefront offline")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	entry, _, err := ledger.Entry(ctx, "tx_fail")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.Status != "released" || entry.LastError != "storefront offline" {
		t.Fatalf("unexpected released entry %#v", entry)
	}

	retryID, accepted, err := ledger.Claim(ctx, "tx_fail", time.Hour)
	if err != nil || !accepted || retryID == claimID {
		t.Fatalf("expected fresh claim after failure, got %q %v %v", retryID, accepted, err)
	}
	if err := ledger.Complete(ctx, claimID); err != nil {
		t.Fatalf("stale complete: %v", err)
	}
	entry, _, _ = ledger.Entry(ctx, "tx_fail")
	if entry.Status != "processing" || entry.Attempts != 2 {
		t.Fatalf("stale claim must not settle the retry, got %#v", entry)
	}
}

func TestFinalizationLedger_AbandonedClaimIsTakenOverAfterLease(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	clock := newFakeClock()
	ledger := newLedger(t, client, sqlstore.WithClock(clock.Now), sqlstore.WithClaimLease(time.Minute))

	if _, accepted, _ := ledger.Claim(ctx, "tx_crash", time.Hour); !accepted {
		t.Fatalf("expected first claim accepted")
	}
	clock.Advance(30 * time.Second)
	if _, accepted, _ := ledger.Claim(ctx, "tx_crash", time.Hour); accepted {
		t.Fatalf("expected claim rejected inside lease")
	}
	clock.Advance(time.Minute)
	if _, accepted, err := ledger.Claim(ctx, "tx_crash", time.Hour); err != nil || !accepted {
		t.Fatalf("expected takeover after lease, got %v %v", accepted, err)
	}
}

func TestFinalizationLedger_EntriesAndPurge(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	clock := newFakeClock()
	ledger := newLedger(t, client, sqlstore.WithClock(clock.Now))

	for i := 1; i <= 3; i++ {
		claimID, _, err := ledger.Claim(ctx, fmt.Sprintf("tx_%d", i), time.Minute)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if i < 3 {
			if err := ledger.Complete(ctx, claimID); err != nil {
				t.Fatalf("complete %d: %v", i, err)
			}
		}
	}

	completed, err := ledger.Entries(ctx, "complete", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected two completed entries, got %#v", completed)
	}

	clock.Advance(2 * time.Minute)
	purged, err := ledger.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected two purged rows, got %d", purged)
	}
	remaining, err := ledger.Entries(ctx, "", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(remaining) != 1 || remaining[0].TransactionID != "tx_3" {
		t.Fatalf("expected only the processing row left, got %#v", remaining)
	}
}

func TestFinalizationLedger_RejectsBlankInput(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ledger := newLedger(t, client)

	if _, _, err := ledger.Claim(context.Background(), " ", time.Hour); err == nil {
		t.Fatalf("expected error for blank transaction id")
	}
	if err := ledger.Complete(context.Background(), ""); err == nil {
		t.Fatalf("expected error for blank claim id")
	}
	if _, err := sqlstore.NewFinalizationLedger(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestFinalizationLedger_BacksBridgeAcrossInstances(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.FinalizationLedger()
	if ledger == nil {
		t.Fatalf("expected ledger from factory")
	}

	store := &countingStorefront{}
	first, err := core.NewBridge(store, core.Config{}, core.WithFinalizationLedger(ledger))
	if err != nil {
		t.Fatalf("first bridge: %v", err)
	}
	defer first.Close()
	second, err := core.NewBridge(store, core.Config{}, core.WithFinalizationLedger(ledger))
	if err != nil {
		t.Fatalf("second bridge: %v", err)
	}
	defer second.Close()

	record := core.TransactionRecord{ID: "tx_shared", ProductID: "coins_100", State: core.TransactionStatePurchased}
	first.OnTransactionsUpdated(ctx, []core.TransactionRecord{record})
	second.OnTransactionsUpdated(ctx, []core.TransactionRecord{record})

	if store.finalizeCount() != 1 {
		t.Fatalf("expected one finalize across bridges, got %d", store.finalizeCount())
	}
}

func newLedger(t *testing.T, client *persistence.Client, opts ...sqlstore.LedgerOption) *sqlstore.FinalizationLedger {
	t.Helper()
	ledger, err := sqlstore.NewFinalizationLedger(client.DB(), opts...)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:iap-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.Open(context.Background(), sqlstore.DBConfig{
		Driver:       sqlstore.DriverSQLite,
		DSN:          dsn,
		PingTimeout:  time.Second,
		MaxOpenConns: 1,
		Migrate:      true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}

type countingStorefront struct {
	mu        sync.Mutex
	finalized int
}

func (s *countingStorefront) QueryProducts(context.Context, []string) (core.ProductQueryResult, error) {
	return core.ProductQueryResult{}, nil
}

func (s *countingStorefront) SubmitPayment(context.Context, core.ProductDescriptor) error {
	return nil
}

func (s *countingStorefront) RestoreCompletedTransactions(context.Context) error {
	return nil
}

func (s *countingStorefront) FinalizeTransaction(context.Context, core.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized++
	return nil
}

func (s *countingStorefront) finalizeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}
