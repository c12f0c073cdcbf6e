package extension

import (
	"time"

	"github.com/xraph/accrual"
	"github.com/xraph/accrual/types"
)

// Store drivers selectable from configuration. Grove-backed drivers need a
// database supplied through WithPostgres, WithSQLite or WithMongo.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config holds the Accrual extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.accrual" or "accrual" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store when none was given programmatically:
	// "memory" (default) or "redis".
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// RedisAddr is the address of the Redis server used by the "redis" driver.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisPrefix namespaces the keys written by the "redis" driver
	// (default: "accrual").
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// PluginTimeout bounds a single plugin hook (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// MinFee is the smallest fee a provider may register with.
	MinFee types.Amount `json:"min_fee" mapstructure:"min_fee" yaml:"min_fee"`

	// BillingPeriod is the span one fee pays for (default: 30 days).
	BillingPeriod time.Duration `json:"billing_period" mapstructure:"billing_period" yaml:"billing_period"`

	// MaxProviders caps the number of provider records (default: 200).
	MaxProviders int `json:"max_providers" mapstructure:"max_providers" yaml:"max_providers"`

	// MinSubscriberProviders and MaxSubscriberProviders bound the provider
	// list of a subscription (defaults: 3 and 14).
	MinSubscriberProviders int `json:"min_subscriber_providers" mapstructure:"min_subscriber_providers" yaml:"min_subscriber_providers"`
	MaxSubscriberProviders int `json:"max_subscriber_providers" mapstructure:"max_subscriber_providers" yaml:"max_subscriber_providers"`

	// Admins may toggle provider activity. When empty anyone may.
	Admins []types.Identity `json:"admins" mapstructure:"admins" yaml:"admins"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	def := accrual.DefaultConfig()
	return Config{
		Driver:                 DriverMemory,
		PluginTimeout:          5 * time.Second,
		BillingPeriod:          def.BillingPeriod,
		MaxProviders:           def.MaxProviders,
		MinSubscriberProviders: def.MinSubscriberProviders,
		MaxSubscriberProviders: def.MaxSubscriberProviders,
	}
}

// LedgerConfig returns the engine configuration described by c.
func (c Config) LedgerConfig() accrual.Config {
	return accrual.Config{
		MinFee:                 c.MinFee,
		BillingPeriod:          c.BillingPeriod,
		MaxProviders:           c.MaxProviders,
		MinSubscriberProviders: c.MinSubscriberProviders,
		MaxSubscriberProviders: c.MaxSubscriberProviders,
		Admins:                 c.Admins,
	}
}
