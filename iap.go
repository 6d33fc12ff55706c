package iap

import "github.com/goliatone/go-iap/core"

type Config = core.Config
type FinalizeConfig = core.FinalizeConfig
type ProductsConfig = core.ProductsConfig

type Option = core.Option

type Bridge = core.Bridge
type BridgeDependencies = core.BridgeDependencies

type Storefront = core.Storefront
type TransactionObserver = core.TransactionObserver
type FinalizationLedger = core.FinalizationLedger
type MetricsRecorder = core.MetricsRecorder

type ProductDescriptor = core.ProductDescriptor
type ProductQueryResult = core.ProductQueryResult
type TransactionRecord = core.TransactionRecord
type TransactionState = core.TransactionState
type TransactionEvent = core.TransactionEvent
type PurchaseResult = core.PurchaseResult
type PendingSnapshot = core.PendingSnapshot
type PlatformError = core.PlatformError
type PlatformErrorCode = core.PlatformErrorCode

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithFinalizationLedger = core.WithFinalizationLedger
	WithClock              = core.WithClock
	WithRequestIDGenerator = core.WithRequestIDGenerator
)

var (
	IsBusy               = core.IsBusy
	IsProductNotFound    = core.IsProductNotFound
	IsProductQueryFailed = core.IsProductQueryFailed
	IsUserCancelled      = core.IsUserCancelled
	IsPurchaseFailed     = core.IsPurchaseFailed
	IsRestoreFailed      = core.IsRestoreFailed
	IsBridgeClosed       = core.IsBridgeClosed
	IsFinalizeFailed     = core.IsFinalizeFailed
	PlatformErrorOf      = core.PlatformErrorOf
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewBridge(storefront Storefront, cfg Config, opts ...Option) (*Bridge, error) {
	return core.NewBridge(storefront, cfg, opts...)
}

func Setup(storefront Storefront, cfg Config, opts ...Option) (*Bridge, error) {
	return core.Setup(storefront, cfg, opts...)
}
