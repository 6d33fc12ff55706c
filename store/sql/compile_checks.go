package sqlstore

import "github.com/goliatone/go-iap/core"

var _ core.FinalizationLedger = (*FinalizationLedger)(nil)
