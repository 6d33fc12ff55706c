package iap

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	iapcommand "github.com/goliatone/go-iap/command"
	"github.com/goliatone/go-iap/core"
	iapquery "github.com/goliatone/go-iap/query"
	"github.com/goliatone/go-iap/storefront"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	bridge, _ := newFacadeBridge(t)

	facade, err := NewFacade(bridge)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.Purchase == nil || commands.RestorePurchases == nil || commands.DeliverEvent == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.Products == nil || queries.PendingRequest == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() != BridgeService(bridge) {
		t.Fatalf("expected facade to expose the wrapped bridge")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil service")
	}
	var facade *Facade
	if facade.Commands().Purchase != nil || facade.Service() != nil {
		t.Fatalf("expected zero values from nil facade")
	}
}

func TestFacade_PurchaseRestoreAndQueries(t *testing.T) {
	ctx := context.Background()
	bridge, fake := newFacadeBridge(t)
	facade, err := NewFacade(bridge)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	products, err := facade.Queries().Products.Query(ctx, iapquery.ProductsMessage{ProductIDs: []string{"pro_monthly"}})
	if err != nil {
		t.Fatalf("query products: %v", err)
	}
	if len(products.Products) != 1 || products.Products[0].LocalizedPrice != "$4.99" {
		t.Fatalf("unexpected products %#v", products)
	}

	purchase := gocmd.NewResult[PurchaseResult]()
	if err := facade.Commands().Purchase.Execute(gocmd.ContextWithResult(ctx, purchase), iapcommand.PurchaseMessage{
		ProductID: "pro_monthly",
	}); err != nil {
		t.Fatalf("execute purchase: %v", err)
	}
	bought, ok := purchase.Load()
	if !ok || bought.ProductID != "pro_monthly" {
		t.Fatalf("unexpected purchase %#v", bought)
	}

	restore := gocmd.NewResult[[]PurchaseResult]()
	if err := facade.Commands().RestorePurchases.Execute(gocmd.ContextWithResult(ctx, restore), iapcommand.RestorePurchasesMessage{}); err != nil {
		t.Fatalf("execute restore: %v", err)
	}
	restored, ok := restore.Load()
	if !ok || len(restored) != 1 || restored[0].ProductID != "pro_monthly" {
		t.Fatalf("unexpected restore %#v", restored)
	}

	fake.Wait()
	pending, err := facade.Queries().PendingRequest.Query(ctx, iapquery.PendingRequestMessage{})
	if err != nil {
		t.Fatalf("query pending: %v", err)
	}
	if !pending.Idle() {
		t.Fatalf("expected idle bridge, got %#v", pending)
	}
	if len(fake.Finalized()) != 2 {
		t.Fatalf("expected purchase and restore finalized, got %#v", fake.Finalized())
	}
}

func TestFacade_OptionsOverrideSinkAndReader(t *testing.T) {
	bridge, _ := newFacadeBridge(t)
	sink := &recordingSink{}
	reader := staticReader{result: core.ProductQueryResult{InvalidIDs: []string{"x"}}}

	facade, err := NewFacade(bridge, WithEventSink(sink), WithProductReader(reader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if err := facade.Commands().DeliverEvent.Execute(context.Background(), iapcommand.DeliverEventMessage{
		Event: core.TransactionEvent{Kind: core.TransactionEventRestoreComplete},
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sink.count != 1 {
		t.Fatalf("expected custom sink to receive event")
	}
	result, err := facade.Queries().Products.Query(context.Background(), iapquery.ProductsMessage{ProductIDs: []string{"x"}})
	if err != nil || len(result.InvalidIDs) != 1 {
		t.Fatalf("expected custom reader result, got %#v %v", result, err)
	}
}

func newFacadeBridge(t *testing.T) (*Bridge, *storefront.FakeStorefront) {
	t.Helper()
	fake := storefront.NewFakeStorefront(ProductDescriptor{ID: "pro_monthly", LocalizedPrice: "$4.99"})
	bridge, err := NewBridge(fake, DefaultConfig())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	fake.Attach(bridge)
	t.Cleanup(func() {
		_ = bridge.Close()
	})
	return bridge, fake
}

type recordingSink struct {
	count int
}

func (s *recordingSink) Deliver(context.Context, core.TransactionEvent) error {
	s.count++
	return nil
}

type staticReader struct {
	result core.ProductQueryResult
}

func (r staticReader) Products(context.Context, []string) (core.ProductQueryResult, error) {
	return r.result, nil
}
