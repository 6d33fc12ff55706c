package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	iapmigrations "github.com/goliatone/go-iap/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DBConfig describes the database backing the SQL stores. It satisfies the
// go-persistence-bun config contract.
type DBConfig struct {
	Driver       string
	DSN          string
	Debug        bool
	PingTimeout  time.Duration
	MaxOpenConns int
	// Migrate applies the embedded ledger schema on open.
	Migrate bool
}

func (c DBConfig) GetDebug() bool            { return c.Debug }
func (c DBConfig) GetDriver() string         { return c.Driver }
func (c DBConfig) GetServer() string         { return c.DSN }
func (c DBConfig) GetOtelIdentifier() string { return "go-iap" }

func (c DBConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

// Open connects to cfg.Driver, choosing the bun dialect to match, and applies
// migrations when cfg.Migrate is set.
func Open(ctx context.Context, cfg DBConfig) (*persistence.Client, error) {
	driver, dialect, migrationDialect, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if !cfg.Migrate {
		return client, nil
	}

	_, err = iapmigrations.Register(ctx, func(_ context.Context, _ string, src iapmigrations.Source) error {
		client.RegisterSQLMigrations(src.FS)
		return nil
	}, iapmigrations.ForDialects(string(migrationDialect)))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}

func resolveDriver(name string) (string, schema.Dialect, iapmigrations.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, sqlitedialect.New(), iapmigrations.DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, pgdialect.New(), iapmigrations.DialectPostgres, nil
	default:
		return "", nil, "", fmt.Errorf("sqlstore: unsupported driver %q", name)
	}
}
