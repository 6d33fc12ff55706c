package query

import (
	"fmt"
	"strings"
)

const (
	TypeProducts       = "iap.query.products"
	TypePendingRequest = "iap.query.pending_request"
)

type ProductsMessage struct {
	ProductIDs []string
}

func (ProductsMessage) Type() string { return TypeProducts }

func (m ProductsMessage) Validate() error {
	if len(m.ProductIDs) == 0 {
		return invalidField(TypeProducts, "product_ids", "at least one product id is required")
	}
	for index, id := range m.ProductIDs {
		if strings.TrimSpace(id) == "" {
			return invalidField(
				TypeProducts,
				fmt.Sprintf("product_ids[%d]", index),
				"product id is required",
			)
		}
	}
	return nil
}

type PendingRequestMessage struct{}

func (PendingRequestMessage) Type() string { return TypePendingRequest }

func (PendingRequestMessage) Validate() error { return nil }
