package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-iap/core"
)

var (
	_ gocmd.Commander[PurchaseMessage]         = (*PurchaseCommand)(nil)
	_ gocmd.Commander[RestorePurchasesMessage] = (*RestorePurchasesCommand)(nil)
	_ gocmd.Commander[DeliverEventMessage]     = (*DeliverEventCommand)(nil)

	_ PurchaseService = (*core.Bridge)(nil)
	_ EventSink       = (*core.Bridge)(nil)
)
