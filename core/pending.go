package core

import (
	"context"
	"sync"
	"time"
)

type outcome[T any] struct {
	value T
	err   error
}

// continuation is settled at most once; the buffered channel lets the
// settling side finish even if the caller stopped waiting.
type continuation[T any] struct {
	once sync.Once
	ch   chan outcome[T]
}

func newContinuation[T any]() *continuation[T] {
	return &continuation[T]{ch: make(chan outcome[T], 1)}
}

func (c *continuation[T]) resolve(value T) bool {
	return c.settle(outcome[T]{value: value})
}

func (c *continuation[T]) reject(err error) bool {
	return c.settle(outcome[T]{err: err})
}

func (c *continuation[T]) settle(result outcome[T]) bool {
	settled := false
	c.once.Do(func() {
		c.ch <- result
		settled = true
	})
	return settled
}

// wait blocks until the continuation settles. A done ctx only stops this
// caller from waiting; the request itself is not retracted.
func (c *continuation[T]) wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case result := <-c.ch:
		return result.value, result.err
	default:
	}
	select {
	case result := <-c.ch:
		return result.value, result.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// pendingRequest is the closed set of in-flight request variants. A nil
// pendingRequest on the bridge means idle.
type pendingRequest interface {
	snapshot() PendingSnapshot
	rejectWith(err error)
}

type purchaseRequest struct {
	id        string
	productID string
	stage     PurchaseStage
	startedAt time.Time
	done      *continuation[PurchaseResult]
}

func (r *purchaseRequest) snapshot() PendingSnapshot {
	return PendingSnapshot{
		Kind:      RequestKindPurchase,
		RequestID: r.id,
		ProductID: r.productID,
		Stage:     r.stage,
		StartedAt: r.startedAt,
	}
}

func (r *purchaseRequest) rejectWith(err error) {
	r.done.reject(err)
}

func (r *purchaseRequest) awaitingPayment() bool {
	return r.stage == PurchaseStageAwaitingPayment
}

type restoreRequest struct {
	id        string
	startedAt time.Time
	batch     []TransactionRecord
	done      *continuation[[]PurchaseResult]
}

func (r *restoreRequest) snapshot() PendingSnapshot {
	return PendingSnapshot{
		Kind:          RequestKindRestore,
		RequestID:     r.id,
		RestoredSoFar: len(r.batch),
		StartedAt:     r.startedAt,
	}
}

func (r *restoreRequest) rejectWith(err error) {
	r.batch = nil
	r.done.reject(err)
}

func (r *restoreRequest) flush() []PurchaseResult {
	results := make([]PurchaseResult, 0, len(r.batch))
	for _, record := range r.batch {
		results = append(results, purchaseResultFrom(record))
	}
	r.batch = nil
	return results
}

func snapshotOf(pending pendingRequest) PendingSnapshot {
	if pending == nil {
		return PendingSnapshot{Kind: RequestKindNone}
	}
	return pending.snapshot()
}
