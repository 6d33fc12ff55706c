package gojob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

// RetryPolicy bounds redelivery of events the bridge could not accept.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DelayFor doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter && (p.MaxAttempts <= 0 || attempt < p.MaxAttempts) {
		out.Requeue = true
	}
	return out
}

// EventPublisher is a TransactionObserver that forwards every callback to a
// go-job queue instead of a bridge. Attach it to a storefront running in a
// different goroutine or process than the bridge.
type EventPublisher struct {
	enqueuer queue.Enqueuer
	logger   glog.Logger
}

func NewEventPublisher(enqueuer queue.Enqueuer, logger glog.Logger) (*EventPublisher, error) {
	if enqueuer == nil {
		return nil, dependencyError("enqueuer is required")
	}
	return &EventPublisher{enqueuer: enqueuer, logger: glog.Ensure(logger)}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, event core.TransactionEvent) error {
	if p == nil || p.enqueuer == nil {
		return dependencyError("enqueuer is not configured")
	}
	msg, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	return p.enqueuer.Enqueue(ctx, msg)
}

func (p *EventPublisher) OnTransactionsUpdated(ctx context.Context, records []core.TransactionRecord) {
	p.publish(ctx, core.TransactionEvent{Kind: core.TransactionEventUpdated, Transactions: records})
}

func (p *EventPublisher) OnRestoreCompleted(ctx context.Context) {
	p.publish(ctx, core.TransactionEvent{Kind: core.TransactionEventRestoreComplete})
}

func (p *EventPublisher) OnRestoreFailed(ctx context.Context, err *core.PlatformError) {
	p.publish(ctx, core.TransactionEvent{Kind: core.TransactionEventRestoreFailed, Error: err})
}

// Observer callbacks have no error path, so enqueue failures are logged.
func (p *EventPublisher) publish(ctx context.Context, event core.TransactionEvent) {
	if err := p.Publish(ctx, event); err != nil && p != nil {
		p.logger.Error("transaction event publish failed",
			"event_kind", string(event.Kind),
			"transactions", len(event.Transactions),
			"error", err.Error(),
		)
	}
}

type EventSink interface {
	Deliver(ctx context.Context, event core.TransactionEvent) error
}

// EventConsumer drains transaction events from a go-job queue into a bridge.
// Events the bridge rejects as malformed are dead-lettered at once; other
// delivery failures are retried under the RetryPolicy.
type EventConsumer struct {
	dequeuer queue.Dequeuer
	sink     EventSink
	policy   RetryPolicy
	logger   glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewEventConsumer(dequeuer queue.Dequeuer, sink EventSink, policy RetryPolicy, logger glog.Logger) (*EventConsumer, error) {
	if dequeuer == nil {
		return nil, dependencyError("dequeuer is required")
	}
	if sink == nil {
		return nil, dependencyError("event sink is required")
	}
	return &EventConsumer{
		dequeuer: dequeuer,
		sink:     sink,
		policy:   policy,
		logger:   glog.Ensure(logger),
		attempts: map[string]int{},
	}, nil
}

// ConsumeOne dequeues a single delivery and settles it.
func (c *EventConsumer) ConsumeOne(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.sink == nil {
		return dependencyError("event consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	event, err := DecodeEvent(delivery.Message())
	if err != nil {
		c.logger.Warn("transaction event dead-lettered", "reason", "decode", "error", err.Error())
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return errors.Join(err, nackErr)
		}
		return err
	}

	key := EventKey(event)
	deliverErr := c.sink.Deliver(ctx, event)
	if deliverErr == nil {
		c.resetAttempts(key)
		return delivery.Ack(ctx)
	}

	if core.TextCode(deliverErr) == core.BridgeErrorBadInput {
		c.resetAttempts(key)
		c.logger.Warn("transaction event dead-lettered",
			"reason", "rejected",
			"event_kind", string(event.Kind),
			"error", deliverErr.Error(),
		)
		if nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: deliverErr.Error()}); nackErr != nil {
			return errors.Join(deliverErr, nackErr)
		}
		return deliverErr
	}

	attempt := c.nextAttempt(key)
	opts := c.policy.NormalizeAttempt(queue.NackOptions{
		Requeue: true,
		Delay:   c.policy.DelayFor(attempt),
		Reason:  deliverErr.Error(),
	}, attempt)
	if !opts.Requeue {
		c.resetAttempts(key)
	}
	c.logger.Warn("transaction event delivery failed",
		"event_kind", string(event.Kind),
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"error", deliverErr.Error(),
	)
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return errors.Join(deliverErr, nackErr)
	}
	return deliverErr
}

// Run consumes until ctx is done. Per-delivery failures are logged and do
// not stop the loop.
func (c *EventConsumer) Run(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.sink == nil {
		return dependencyError("event consumer is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.ConsumeOne(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Debug("transaction event consume error", "error", err.Error())
		}
	}
}

func (c *EventConsumer) nextAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *EventConsumer) resetAttempts(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}
