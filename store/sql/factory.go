package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores over one bun database.
type RepositoryFactory struct {
	db     *bun.DB
	opts   []LedgerOption
	ledger *FinalizationLedger
}

func NewRepositoryFactory(opts ...LedgerOption) *RepositoryFactory {
	return &RepositoryFactory{opts: opts}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...LedgerOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...LedgerOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build resolves the bun database from a *bun.DB or anything exposing DB()
// and creates the stores once.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.ledger != nil {
		return nil
	}
	ledger, err := NewFinalizationLedger(f.db, f.opts...)
	if err != nil {
		return err
	}
	f.ledger = ledger
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) FinalizationLedger() *FinalizationLedger {
	if f == nil {
		return nil
	}
	return f.ledger
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
