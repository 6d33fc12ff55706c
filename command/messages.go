package command

import (
	"strings"

	"github.com/goliatone/go-iap/core"
)

const (
	TypePurchase         = "iap.command.purchase"
	TypeRestorePurchases = "iap.command.restore_purchases"
	TypeDeliverEvent     = "iap.command.transactions.deliver"
)

type PurchaseMessage struct {
	ProductID string
}

func (PurchaseMessage) Type() string { return TypePurchase }

func (m PurchaseMessage) Validate() error {
	if strings.TrimSpace(m.ProductID) == "" {
		return invalidField(TypePurchase, "product_id", "product id is required")
	}
	return nil
}

type RestorePurchasesMessage struct{}

func (RestorePurchasesMessage) Type() string { return TypeRestorePurchases }

func (RestorePurchasesMessage) Validate() error { return nil }

// DeliverEventMessage replays one storefront callback into the bridge.
type DeliverEventMessage struct {
	Event core.TransactionEvent
}

func (DeliverEventMessage) Type() string { return TypeDeliverEvent }

func (m DeliverEventMessage) Validate() error {
	switch m.Event.Kind {
	case core.TransactionEventUpdated:
		if len(m.Event.Transactions) == 0 {
			return invalidField(TypeDeliverEvent, "transactions", "at least one transaction is required")
		}
		for _, record := range m.Event.Transactions {
			if !record.State.Valid() {
				return invalidField(TypeDeliverEvent, "transactions.state", "unsupported transaction state "+string(record.State))
			}
		}
	case core.TransactionEventRestoreComplete, core.TransactionEventRestoreFailed:
	default:
		return unsupportedEventKind(m.Event.Kind)
	}
	return nil
}
