// Package extension provides the Forge extension adapter for Accrual.
//
// It implements the forge.Extension interface to integrate the accrual
// ledger into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.accrual" or "accrual" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/accrual"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/store/memory"
	redisstore "github.com/xraph/accrual/store/redis"
	"github.com/xraph/accrual/transfer"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "accrual"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Per-second accrual billing ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the accrual ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *accrual.Ledger
	store      store.Store
	transfers  transfer.Transferor
	ledgerOpts []accrual.Option
}

// New creates a new Accrual Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *accrual.Ledger { return e.engine }

// Transferor returns the asset transfer collaborator. Without WithTransferor
// this is an in-memory *transfer.Custodian whose holders are never short.
func (e *Extension) Transferor() transfer.Transferor { return e.transfers }

// Register implements [forge.Extension]. It loads configuration,
// initializes the accrual engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*accrual.Ledger, error) {
		return e.engine, nil
	})
}

// init builds the store, the transferor and the engine from the resolved
// config.
func (e *Extension) init() error {
	if e.store == nil {
		s, err := buildStore(e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	if e.transfers == nil {
		e.transfers = transfer.NewCustodian(transfer.WithUnlimitedHoldings())
	}

	e.engine = accrual.New(e.store, e.transfers, e.buildLedgerOpts()...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("accrual: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("accrual: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs the store named by cfg.Driver.
func buildStore(cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("accrual: redis driver requires redis_addr")
		}
		var opts []redisstore.Option
		if cfg.RedisPrefix != "" {
			opts = append(opts, redisstore.WithPrefix(cfg.RedisPrefix))
		}
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redisstore.New(client, opts...), nil
	default:
		return nil, fmt.Errorf("accrual: unknown store driver %q; grove drivers are set with WithPostgres, WithSQLite or WithMongo", cfg.Driver)
	}
}

// buildLedgerOpts constructs accrual.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []accrual.Option {
	opts := make([]accrual.Option, 0, len(e.ledgerOpts)+3)

	opts = append(opts, accrual.WithConfig(e.config.LedgerConfig()))

	if e.config.PluginTimeout > 0 {
		opts = append(opts, accrual.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, accrual.WithoutMigrate())
	}

	// Append any pass-through accrual options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("accrual: configuration is required but not found in config files; " +
				"ensure 'extensions.accrual' or 'accrual' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("accrual: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("billing_period", e.config.BillingPeriod),
		forge.F("max_providers", e.config.MaxProviders),
		forge.F("min_subscriber_providers", e.config.MinSubscriberProviders),
		forge.F("max_subscriber_providers", e.config.MaxSubscriberProviders),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.accrual", "accrual"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("accrual: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("accrual: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.BillingPeriod == 0 {
		cfg.BillingPeriod = defaults.BillingPeriod
	}
	if cfg.MaxProviders == 0 {
		cfg.MaxProviders = defaults.MaxProviders
	}
	if cfg.MinSubscriberProviders == 0 {
		cfg.MinSubscriberProviders = defaults.MinSubscriberProviders
	}
	if cfg.MaxSubscriberProviders == 0 {
		cfg.MaxSubscriberProviders = defaults.MaxSubscriberProviders
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.RedisAddr == "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}
	if yamlConfig.RedisPrefix == "" {
		yamlConfig.RedisPrefix = programmaticConfig.RedisPrefix
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.MinFee == 0 {
		yamlConfig.MinFee = programmaticConfig.MinFee
	}
	if yamlConfig.BillingPeriod == 0 {
		yamlConfig.BillingPeriod = programmaticConfig.BillingPeriod
	}
	if yamlConfig.MaxProviders == 0 {
		yamlConfig.MaxProviders = programmaticConfig.MaxProviders
	}
	if yamlConfig.MinSubscriberProviders == 0 {
		yamlConfig.MinSubscriberProviders = programmaticConfig.MinSubscriberProviders
	}
	if yamlConfig.MaxSubscriberProviders == 0 {
		yamlConfig.MaxSubscriberProviders = programmaticConfig.MaxSubscriberProviders
	}
	if len(yamlConfig.Admins) == 0 {
		yamlConfig.Admins = programmaticConfig.Admins
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
