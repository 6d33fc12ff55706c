package core

import (
	"strings"
	"time"
)

type TransactionState string

const (
	TransactionStatePurchasing TransactionState = "purchasing"
	TransactionStatePurchased  TransactionState = "purchased"
	TransactionStateFailed     TransactionState = "failed"
	TransactionStateRestored   TransactionState = "restored"
	TransactionStateDeferred   TransactionState = "deferred"
)

// Terminal reports whether the storefront expects the transaction to be
// finalized. Purchasing and deferred transactions stay in the queue.
func (s TransactionState) Terminal() bool {
	switch s {
	case TransactionStatePurchased, TransactionStateFailed, TransactionStateRestored:
		return true
	default:
		return false
	}
}

func (s TransactionState) Valid() bool {
	switch s {
	case TransactionStatePurchasing,
		TransactionStatePurchased,
		TransactionStateFailed,
		TransactionStateRestored,
		TransactionStateDeferred:
		return true
	default:
		return false
	}
}

type ProductDescriptor struct {
	ID             string
	Title          string
	Description    string
	Price          string
	PriceLocale    string
	LocalizedPrice string
	CurrencyCode   string
	Metadata       map[string]any
}

type ProductQueryResult struct {
	Products   []ProductDescriptor
	InvalidIDs []string
}

// Find returns the descriptor matching productID.
func (r ProductQueryResult) Find(productID string) (ProductDescriptor, bool) {
	productID = strings.TrimSpace(productID)
	for _, product := range r.Products {
		if strings.TrimSpace(product.ID) == productID {
			return product, true
		}
	}
	return ProductDescriptor{}, false
}

type TransactionRecord struct {
	ID                    string
	ProductID             string
	State                 TransactionState
	Date                  time.Time
	OriginalTransactionID string
	Quantity              int
	Error                 *PlatformError
	// Handle is the storefront's own transaction object. The bridge never
	// inspects it; it is handed back on FinalizeTransaction.
	Handle any
}

type PurchaseResult struct {
	TransactionID string
	ProductID     string
	PurchaseDate  time.Time
}

func purchaseResultFrom(record TransactionRecord) PurchaseResult {
	return PurchaseResult{
		TransactionID: strings.TrimSpace(record.ID),
		ProductID:     strings.TrimSpace(record.ProductID),
		PurchaseDate:  record.Date.UTC(),
	}
}

type RequestKind string

const (
	RequestKindNone     RequestKind = "none"
	RequestKindPurchase RequestKind = "purchase"
	RequestKindRestore  RequestKind = "restore"
)

type PurchaseStage string

const (
	PurchaseStageQueryingProduct PurchaseStage = "querying_product"
	PurchaseStageAwaitingPayment PurchaseStage = "awaiting_payment"
)

// PendingSnapshot is a read-only view of the bridge's in-flight request.
type PendingSnapshot struct {
	Kind          RequestKind
	RequestID     string
	ProductID     string
	Stage         PurchaseStage
	RestoredSoFar int
	StartedAt     time.Time
}

func (s PendingSnapshot) Idle() bool {
	return s.Kind == "" || s.Kind == RequestKindNone
}
