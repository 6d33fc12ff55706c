package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-iap/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const productCacheKeyPrefix = "go-iap::products::v1"

// CachedStorefront memoizes product lookups in front of another Storefront.
// Only complete answers are cached. A result that reports invalid ids is
// returned to the caller and fetched again on the next lookup.
type CachedStorefront struct {
	base  core.Storefront
	cache repositorycache.CacheService
}

func NewCachedStorefront(base core.Storefront, cacheService repositorycache.CacheService) (*CachedStorefront, error) {
	if base == nil {
		return nil, fmt.Errorf("storefront: base storefront is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("storefront: product cache service is required")
	}
	return &CachedStorefront{base: base, cache: cacheService}, nil
}

// NewProductCacheService builds the cache service backing CachedStorefront
// using the bridge's products.cache_ttl.
func NewProductCacheService(cfg core.ProductsConfig) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if cfg.CacheTTL > 0 {
		config.TTL = cfg.CacheTTL
	}
	return repositorycache.NewCacheService(config)
}

// ProductCacheKey returns the cache key for a product id set:
// go-iap::products::v1::<id>::<id>... with ids sorted and URL-path escaped.
func ProductCacheKey(ids []string) (string, error) {
	normalized := normalizeIDs(ids)
	if len(normalized) == 0 {
		return "", fmt.Errorf("storefront: at least one product id is required")
	}
	segments := make([]string, 0, len(normalized)+1)
	segments = append(segments, productCacheKeyPrefix)
	for _, id := range normalized {
		segments = append(segments, url.PathEscape(id))
	}
	return strings.Join(segments, "::"), nil
}

type incompleteQuery struct {
	result core.ProductQueryResult
}

func (incompleteQuery) Error() string {
	return "storefront: product query reported invalid ids"
}

func (s *CachedStorefront) QueryProducts(ctx context.Context, ids []string) (core.ProductQueryResult, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ProductQueryResult{}, fmt.Errorf("storefront: cached storefront is not configured")
	}
	cacheKey, err := ProductCacheKey(ids)
	if err != nil {
		return core.ProductQueryResult{}, err
	}

	result, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ProductQueryResult, error) {
		fetched, fetchErr := s.base.QueryProducts(ctx, ids)
		if fetchErr != nil {
			return core.ProductQueryResult{}, fetchErr
		}
		if len(fetched.InvalidIDs) > 0 {
			return core.ProductQueryResult{}, incompleteQuery{result: cloneQueryResult(fetched)}
		}
		return cloneQueryResult(fetched), nil
	})
	if err != nil {
		var incomplete incompleteQuery
		if errors.As(err, &incomplete) {
			return cloneQueryResult(incomplete.result), nil
		}
		return core.ProductQueryResult{}, err
	}
	return cloneQueryResult(result), nil
}

// Invalidate drops the cached answer for exactly this id set.
func (s *CachedStorefront) Invalidate(ctx context.Context, ids []string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("storefront: cached storefront is not configured")
	}
	cacheKey, err := ProductCacheKey(ids)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedStorefront) SubmitPayment(ctx context.Context, product core.ProductDescriptor) error {
	return s.base.SubmitPayment(ctx, product)
}

func (s *CachedStorefront) RestoreCompletedTransactions(ctx context.Context) error {
	return s.base.RestoreCompletedTransactions(ctx)
}

func (s *CachedStorefront) FinalizeTransaction(ctx context.Context, record core.TransactionRecord) error {
	return s.base.FinalizeTransaction(ctx, record)
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneQueryResult(in core.ProductQueryResult) core.ProductQueryResult {
	out := core.ProductQueryResult{
		Products:   make([]core.ProductDescriptor, 0, len(in.Products)),
		InvalidIDs: append([]string(nil), in.InvalidIDs...),
	}
	for _, product := range in.Products {
		out.Products = append(out.Products, cloneProduct(product))
	}
	return out
}

func cloneProduct(in core.ProductDescriptor) core.ProductDescriptor {
	out := in
	if in.Metadata != nil {
		out.Metadata = make(map[string]any, len(in.Metadata))
		for key, value := range in.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

var _ core.Storefront = (*CachedStorefront)(nil)
