package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	iapcommand "github.com/goliatone/go-iap/command"
	"github.com/goliatone/go-iap/core"
	iapquery "github.com/goliatone/go-iap/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract checks a message has a non-empty Type() and passes
// its own Validate(), when it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	if messageType(msg) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

func messageType(msg any) string {
	m, ok := msg.(command.Message)
	if !ok {
		return ""
	}
	return strings.TrimSpace(m.Type())
}

// Registry mounts bridge handlers on a go-command registry and keeps the
// dispatcher subscriptions it creates so they can be released together.
type Registry struct {
	registry   *command.Registry
	runnerOpts []runner.Option

	mu   sync.Mutex
	subs []commanddispatcher.Subscription
}

func NewRegistry(registry *command.Registry, runnerOpts ...runner.Option) *Registry {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Registry{registry: registry, runnerOpts: runnerOpts}
}

func (r *Registry) Commands() *command.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WithQueue mirrors registered commands into a go-job queue registry under
// the resolver key.
func (r *Registry) WithQueue(key string, queueRegistry *jobqueuecommand.Registry) error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return r.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (r *Registry) HasResolver(key string) bool {
	if r == nil || r.registry == nil {
		return false
	}
	return r.registry.HasResolver(strings.TrimSpace(key))
}

func (r *Registry) Initialize() error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return r.registry.Initialize()
}

// Len reports the live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close unsubscribes every handler mounted through r.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

func (r *Registry) track(sub commanddispatcher.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// AddCommand subscribes cmd on the global dispatcher and registers it.
func AddCommand[T any](r *Registry, cmd command.Commander[T]) error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	var zero T
	if messageType(zero) == "" {
		return fmt.Errorf("gocommand: command message %T has no type", zero)
	}
	sub := commanddispatcher.SubscribeCommand(cmd, r.runnerOpts...)
	if err := r.registry.RegisterCommand(cmd); err != nil {
		sub.Unsubscribe()
		return err
	}
	r.track(sub)
	return nil
}

// AddQuery is AddCommand for queriers; go-command keeps both kinds in one
// registry.
func AddQuery[T any, R any](r *Registry, qry command.Querier[T, R]) error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	var zero T
	if messageType(zero) == "" {
		return fmt.Errorf("gocommand: query message %T has no type", zero)
	}
	sub := commanddispatcher.SubscribeQuery(qry, r.runnerOpts...)
	if err := r.registry.RegisterCommand(qry); err != nil {
		sub.Unsubscribe()
		return err
	}
	r.track(sub)
	return nil
}

// MountBridge registers the purchase, restore and deliver commands plus the
// products and pending request queries backed by bridge. A failure releases
// everything mounted through r.
func (r *Registry) MountBridge(bridge *core.Bridge) error {
	if bridge == nil {
		return fmt.Errorf("gocommand: bridge is required")
	}
	steps := []func() error{
		func() error { return AddCommand[iapcommand.PurchaseMessage](r, iapcommand.NewPurchaseCommand(bridge)) },
		func() error { return AddCommand[iapcommand.RestorePurchasesMessage](r, iapcommand.NewRestorePurchasesCommand(bridge)) },
		func() error { return AddCommand[iapcommand.DeliverEventMessage](r, iapcommand.NewDeliverEventCommand(bridge)) },
		func() error { return AddQuery[iapquery.ProductsMessage, core.ProductQueryResult](r, iapquery.NewProductsQuery(bridge)) },
		func() error { return AddQuery[iapquery.PendingRequestMessage, core.PendingSnapshot](r, iapquery.NewPendingRequestQuery(bridge)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			r.Close()
			return err
		}
	}
	return nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
