package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Storefront is the platform purchase capability the bridge drives. Outcomes
// of SubmitPayment and RestoreCompletedTransactions arrive later through the
// TransactionObserver methods, never as return values.
type Storefront interface {
	QueryProducts(ctx context.Context, ids []string) (ProductQueryResult, error)
	SubmitPayment(ctx context.Context, product ProductDescriptor) error
	RestoreCompletedTransactions(ctx context.Context) error
	FinalizeTransaction(ctx context.Context, record TransactionRecord) error
}

// TransactionObserver receives the storefront's asynchronous event stream.
type TransactionObserver interface {
	OnTransactionsUpdated(ctx context.Context, records []TransactionRecord)
	OnRestoreCompleted(ctx context.Context)
	OnRestoreFailed(ctx context.Context, err *PlatformError)
}

// FinalizationLedger guarantees at most one successful finalize per
// transaction id. Claim returns accepted=false when the id is already being
// finalized or was finalized within ttl.
type FinalizationLedger interface {
	Claim(ctx context.Context, transactionID string, ttl time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type TransactionEventKind string

const (
	TransactionEventUpdated         TransactionEventKind = "transactions_updated"
	TransactionEventRestoreComplete TransactionEventKind = "restore_completed"
	TransactionEventRestoreFailed   TransactionEventKind = "restore_failed"
)

// TransactionEvent carries one observer callback across a transport boundary
// (queues, command buses) so it can be replayed through Deliver.
type TransactionEvent struct {
	Kind         TransactionEventKind
	Transactions []TransactionRecord
	Error        *PlatformError
}
