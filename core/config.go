package core

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

const (
	defaultLedgerTTL    = 24 * time.Hour
	defaultCacheTTL     = 5 * time.Minute
	defaultMaxQueryIDs  = 20
	defaultBridgeName   = "iap"
	maxAllowedQueryIDs  = 200
	minAllowedLedgerTTL = time.Second
)

type FinalizeConfig struct {
	LedgerTTL time.Duration `koanf:"ledger_ttl" mapstructure:"ledger_ttl"`
}

type ProductsConfig struct {
	MaxQueryIDs int           `koanf:"max_query_ids" mapstructure:"max_query_ids"`
	CacheTTL    time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type Config struct {
	BridgeName string         `koanf:"bridge_name" mapstructure:"bridge_name"`
	Finalize   FinalizeConfig `koanf:"finalize" mapstructure:"finalize"`
	Products   ProductsConfig `koanf:"products" mapstructure:"products"`
}

func DefaultConfig() Config {
	return Config{
		BridgeName: defaultBridgeName,
		Finalize: FinalizeConfig{
			LedgerTTL: defaultLedgerTTL,
		},
		Products: ProductsConfig{
			MaxQueryIDs: defaultMaxQueryIDs,
			CacheTTL:    defaultCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BridgeName) == "" {
		return fmt.Errorf("core: bridge_name is required")
	}
	if c.Finalize.LedgerTTL < minAllowedLedgerTTL {
		return fmt.Errorf("core: finalize.ledger_ttl must be at least %s", minAllowedLedgerTTL)
	}
	if c.Products.MaxQueryIDs <= 0 || c.Products.MaxQueryIDs > maxAllowedQueryIDs {
		return fmt.Errorf("core: products.max_query_ids must be between 1 and %d", maxAllowedQueryIDs)
	}
	if c.Products.CacheTTL < 0 {
		return fmt.Errorf("core: products.cache_ttl must not be negative")
	}
	return nil
}

// ConfigProvider loads the file or environment layer of the bridge config.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges defaults, loaded and runtime config, later layers
// winning for every field they set.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return maps.Clone(l.Values), nil
}

// CfgxConfigProvider decodes raw koanf-style maps into Config with cfgx.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil || p.Loader == nil {
		return buildConfig(nil, defaults)
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver layers config with go-options scopes: defaults (0),
// config (10), runtime (20).
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), defaults.layer(true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), loaded.layer(false), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), runtime.layer(false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// layer flattens c into the map shape cfgx decodes. Unset fields are left
// out unless includeZero is true so they never shadow a lower layer.
func (c Config) layer(includeZero bool) map[string]any {
	out := map[string]any{}
	if includeZero || strings.TrimSpace(c.BridgeName) != "" {
		out["bridge_name"] = c.BridgeName
	}
	if includeZero || c.Finalize.LedgerTTL > 0 {
		out["finalize"] = map[string]any{"ledger_ttl": c.Finalize.LedgerTTL}
	}
	products := map[string]any{}
	if includeZero || c.Products.MaxQueryIDs > 0 {
		products["max_query_ids"] = c.Products.MaxQueryIDs
	}
	if includeZero || c.Products.CacheTTL > 0 {
		products["cache_ttl"] = c.Products.CacheTTL
	}
	if len(products) > 0 {
		out["products"] = products
	}
	return out
}
