package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-iap/core"
)

var (
	_ gocmd.Querier[ProductsMessage, core.ProductQueryResult]    = (*ProductsQuery)(nil)
	_ gocmd.Querier[PendingRequestMessage, core.PendingSnapshot] = (*PendingRequestQuery)(nil)

	_ ProductReader = (*core.Bridge)(nil)
	_ PendingReader = (*core.Bridge)(nil)
)
