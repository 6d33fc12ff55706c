package core

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type bridgeBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	ledger          FinalizationLedger
	now             func() time.Time
	newRequestID    func() string
}

type Option func(*bridgeBuilder)

func WithLogger(logger Logger) Option {
	return func(b *bridgeBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *bridgeBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *bridgeBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *bridgeBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *bridgeBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *bridgeBuilder) {
		b.optionsResolver = resolver
	}
}

// WithFinalizationLedger replaces the in-memory ledger, e.g. with the SQL
// ledger when several bridges share one storefront queue.
func WithFinalizationLedger(ledger FinalizationLedger) Option {
	return func(b *bridgeBuilder) {
		b.ledger = ledger
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *bridgeBuilder) {
		b.now = now
	}
}

// WithRequestIDGenerator replaces uuid.NewString for pending request ids. next
// is called with the bridge lock held, once per accepted request.
func WithRequestIDGenerator(next func() string) Option {
	return func(b *bridgeBuilder) {
		b.newRequestID = next
	}
}

func defaultBridgeBuilder(runtime Config) bridgeBuilder {
	return bridgeBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		newRequestID: uuid.NewString,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return bridgeErrorMapper(err)
}
