package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Products looks up descriptors for ids without touching the pending request.
func (b *Bridge) Products(ctx context.Context, ids []string) (result ProductQueryResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"product_count": len(ids)}
	defer func() {
		b.observeOperation(ctx, startedAt, "products", err, fields)
	}()

	if b == nil || b.storefront == nil {
		return ProductQueryResult{}, internalError("core: storefront is required", nil)
	}
	normalized, err := b.normalizeProductIDs(ids)
	if err != nil {
		return ProductQueryResult{}, err
	}
	result, err = b.storefront.QueryProducts(ctx, normalized)
	if err != nil {
		err = productQueryFailedError(err, normalized)
		return ProductQueryResult{}, err
	}
	fields["found_count"] = len(result.Products)
	fields["invalid_count"] = len(result.InvalidIDs)
	return cloneProductQueryResult(result), nil
}

// queryProduct resolves a single product id for the purchase flow.
func (b *Bridge) queryProduct(ctx context.Context, productID string) (ProductDescriptor, error) {
	ids := []string{productID}
	result, err := b.storefront.QueryProducts(ctx, ids)
	if err != nil {
		return ProductDescriptor{}, productQueryFailedError(err, ids)
	}
	product, ok := result.Find(productID)
	if !ok {
		return ProductDescriptor{}, productNotFoundError(productID, result.InvalidIDs)
	}
	return cloneProductDescriptor(product), nil
}

func (b *Bridge) normalizeProductIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, badInputError("core: at least one product id is required", nil)
	}
	seen := make(map[string]struct{}, len(ids))
	normalized := make([]string, 0, len(ids))
	for index, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, badInputError(
				fmt.Sprintf("core: product id at index %d is required", index),
				map[string]any{"index": index},
			)
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		normalized = append(normalized, id)
	}
	limit := b.config.Products.MaxQueryIDs
	if limit > 0 && len(normalized) > limit {
		return nil, badInputError(
			fmt.Sprintf("core: too many product ids (%d > %d)", len(normalized), limit),
			map[string]any{"count": len(normalized), "limit": limit},
		)
	}
	return normalized, nil
}

func cloneProductQueryResult(result ProductQueryResult) ProductQueryResult {
	out := ProductQueryResult{
		Products:   make([]ProductDescriptor, 0, len(result.Products)),
		InvalidIDs: append([]string(nil), result.InvalidIDs...),
	}
	for _, product := range result.Products {
		out.Products = append(out.Products, cloneProductDescriptor(product))
	}
	return out
}

func cloneProductDescriptor(product ProductDescriptor) ProductDescriptor {
	cloned := product
	cloned.Metadata = copyAnyMap(product.Metadata)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
