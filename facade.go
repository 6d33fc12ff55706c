package iap

import (
	"fmt"

	iapcommand "github.com/goliatone/go-iap/command"
	iapquery "github.com/goliatone/go-iap/query"
)

// BridgeService is the surface the facade wraps; *Bridge satisfies it.
type BridgeService interface {
	iapcommand.PurchaseService
	iapcommand.EventSink
	iapquery.ProductReader
	iapquery.PendingReader
}

type Commands struct {
	Purchase         *iapcommand.PurchaseCommand
	RestorePurchases *iapcommand.RestorePurchasesCommand
	DeliverEvent     *iapcommand.DeliverEventCommand
}

type Queries struct {
	Products       *iapquery.ProductsQuery
	PendingRequest *iapquery.PendingRequestQuery
}

type Facade struct {
	service  BridgeService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	eventSink     iapcommand.EventSink
	productReader iapquery.ProductReader
}

// WithEventSink routes DeliverEvent to sink instead of the service.
func WithEventSink(sink iapcommand.EventSink) FacadeOption {
	return func(options *facadeOptions) {
		options.eventSink = sink
	}
}

// WithProductReader serves the products query from reader, for example a
// bridge whose storefront is wrapped in a product cache.
func WithProductReader(reader iapquery.ProductReader) FacadeOption {
	return func(options *facadeOptions) {
		options.productReader = reader
	}
}

func NewFacade(service BridgeService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("iap: bridge service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	sink := cfg.eventSink
	if sink == nil {
		sink = service
	}
	reader := cfg.productReader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Purchase:         iapcommand.NewPurchaseCommand(service),
		RestorePurchases: iapcommand.NewRestorePurchasesCommand(service),
		DeliverEvent:     iapcommand.NewDeliverEventCommand(sink),
	}
	facade.queries = Queries{
		Products:       iapquery.NewProductsQuery(reader),
		PendingRequest: iapquery.NewPendingRequestQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() BridgeService {
	if f == nil {
		return nil
	}
	return f.service
}
