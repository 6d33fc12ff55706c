package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Bridge mediates between a callback-driven Storefront and callers that
// expect one answer per request. It owns the single pending request and the
// restore batch; every read or write of either happens under mu.
//
// Purchase and RestorePurchases have no timeout. A deferred purchase, or a
// storefront that never reports the end of a restore sweep, keeps the caller
// waiting and the bridge busy until a terminal event arrives or Close is
// called. Cancelling the caller's context stops the wait but does not retract
// the request.
type Bridge struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	storefront      Storefront
	ledger          FinalizationLedger
	now             func() time.Time
	newRequestID    func() string

	mu      sync.Mutex
	pending pendingRequest
	closed  bool
}

type BridgeDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Storefront      Storefront
	Ledger          FinalizationLedger
}

func NewBridge(storefront Storefront, cfg Config, opts ...Option) (*Bridge, error) {
	if storefront == nil {
		return nil, fmt.Errorf("core: storefront is required")
	}
	builder := defaultBridgeBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	name := defaultBridgeName
	if runtimeName := cfg.BridgeName; runtimeName != "" {
		name = runtimeName
	}
	// An explicit logger wins over the provider's named logger.
	provider, logger := glog.Resolve(name, builder.loggerProvider, builder.logger)
	if builder.logger != nil {
		logger = builder.logger
	}
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.newRequestID == nil {
		builder.newRequestID = defaultBridgeBuilder(cfg).newRequestID
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.ledger == nil {
		ledger := NewInMemoryFinalizationLedger()
		ledger.Now = builder.now
		builder.ledger = ledger
	}

	return &Bridge{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		storefront:      storefront,
		ledger:          builder.ledger,
		now:             builder.now,
		newRequestID:    builder.newRequestID,
	}, nil
}

func Setup(storefront Storefront, cfg Config, opts ...Option) (*Bridge, error) {
	return NewBridge(storefront, cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (b *Bridge) Config() Config {
	if b == nil {
		return Config{}
	}
	return b.config
}

func (b *Bridge) Dependencies() BridgeDependencies {
	if b == nil {
		return BridgeDependencies{}
	}
	return BridgeDependencies{
		Logger:          b.logger,
		LoggerProvider:  b.loggerProvider,
		MetricsRecorder: b.metricsRecorder,
		ErrorMapper:     b.errorMapper,
		ConfigProvider:  b.configProvider,
		OptionsResolver: b.optionsResolver,
		Storefront:      b.storefront,
		Ledger:          b.ledger,
	}
}

// Pending reports the request currently in flight, if any.
func (b *Bridge) Pending() PendingSnapshot {
	if b == nil {
		return PendingSnapshot{Kind: RequestKindNone}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshotOf(b.pending)
}

// Close rejects the in-flight request, if any, and refuses new ones.
// Transactions delivered after Close are still finalized.
func (b *Bridge) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if pending != nil {
		snapshot := pending.snapshot()
		pending.rejectWith(bridgeClosedError())
		b.logWarn(context.Background(), "bridge closed with pending request", map[string]any{
			"bridge":       b.config.BridgeName,
			"pending_kind": string(snapshot.Kind),
			"request_id":   snapshot.RequestID,
			"product_id":   snapshot.ProductID,
		})
	}
	return nil
}

// Deliver replays a transported observer callback. Update events whose
// transactions could not all be finalized return an IAP_FINALIZE_FAILED error
// so the transport can redeliver them.
func (b *Bridge) Deliver(ctx context.Context, event TransactionEvent) error {
	if b == nil {
		return internalError("core: bridge is nil", nil)
	}
	switch event.Kind {
	case TransactionEventUpdated:
		return b.deliverTransactions(ctx, event.Transactions)
	case TransactionEventRestoreComplete:
		b.OnRestoreCompleted(ctx)
	case TransactionEventRestoreFailed:
		b.OnRestoreFailed(ctx, event.Error)
	default:
		return badInputError(
			fmt.Sprintf("core: unsupported transaction event kind %q", event.Kind),
			map[string]any{"kind": string(event.Kind)},
		)
	}
	return nil
}

// beginLocked installs next as the pending request. Callers hold mu.
func (b *Bridge) beginLocked(next pendingRequest) error {
	if b.closed {
		return bridgeClosedError()
	}
	if b.pending != nil {
		return busyError(b.pending.snapshot())
	}
	b.pending = next
	return nil
}

// clearLocked drops current only if it is still the pending request.
func (b *Bridge) clearLocked(current pendingRequest) bool {
	if b.pending == nil || b.pending != current {
		return false
	}
	b.pending = nil
	return true
}
