package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-iap/core"
)

type PurchaseService interface {
	Purchase(ctx context.Context, productID string) (core.PurchaseResult, error)
	RestorePurchases(ctx context.Context) ([]core.PurchaseResult, error)
}

type EventSink interface {
	Deliver(ctx context.Context, event core.TransactionEvent) error
}

type PurchaseCommand struct {
	service PurchaseService
}

func NewPurchaseCommand(service PurchaseService) *PurchaseCommand {
	return &PurchaseCommand{service: service}
}

func (c *PurchaseCommand) Execute(ctx context.Context, msg PurchaseMessage) error {
	if c == nil || c.service == nil {
		return missingDependency(TypePurchase, "purchase service")
	}
	out, err := c.service.Purchase(ctx, msg.ProductID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RestorePurchasesCommand struct {
	service PurchaseService
}

func NewRestorePurchasesCommand(service PurchaseService) *RestorePurchasesCommand {
	return &RestorePurchasesCommand{service: service}
}

func (c *RestorePurchasesCommand) Execute(ctx context.Context, _ RestorePurchasesMessage) error {
	if c == nil || c.service == nil {
		return missingDependency(TypeRestorePurchases, "restore service")
	}
	out, err := c.service.RestorePurchases(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeliverEventCommand struct {
	sink EventSink
}

func NewDeliverEventCommand(sink EventSink) *DeliverEventCommand {
	return &DeliverEventCommand{sink: sink}
}

func (c *DeliverEventCommand) Execute(ctx context.Context, msg DeliverEventMessage) error {
	if c == nil || c.sink == nil {
		return missingDependency(TypeDeliverEvent, "transaction event sink")
	}
	return c.sink.Deliver(ctx, msg.Event)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
