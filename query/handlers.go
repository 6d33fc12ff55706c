package query

import (
	"context"

	"github.com/goliatone/go-iap/core"
)

type ProductReader interface {
	Products(ctx context.Context, ids []string) (core.ProductQueryResult, error)
}

type PendingReader interface {
	Pending() core.PendingSnapshot
}

type ProductsQuery struct {
	reader ProductReader
}

func NewProductsQuery(reader ProductReader) *ProductsQuery {
	return &ProductsQuery{reader: reader}
}

func (q *ProductsQuery) Query(ctx context.Context, msg ProductsMessage) (core.ProductQueryResult, error) {
	if q == nil || q.reader == nil {
		return core.ProductQueryResult{}, missingReader(TypeProducts, "product reader")
	}
	return q.reader.Products(ctx, msg.ProductIDs)
}

type PendingRequestQuery struct {
	reader PendingReader
}

func NewPendingRequestQuery(reader PendingReader) *PendingRequestQuery {
	return &PendingRequestQuery{reader: reader}
}

func (q *PendingRequestQuery) Query(_ context.Context, _ PendingRequestMessage) (core.PendingSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.PendingSnapshot{}, missingReader(TypePendingRequest, "pending request reader")
	}
	return q.reader.Pending(), nil
}
