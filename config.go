package accrual

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xraph/accrual/types"
)

// Defaults for Config.
const (
	DefaultBillingPeriod          = 2592000 * time.Second
	DefaultMaxProviders           = 200
	DefaultMinSubscriberProviders = 3
	DefaultMaxSubscriberProviders = 14
)

// Config holds the admission limits and accrual parameters of a Ledger.
// Fields can be set in code, loaded from YAML with LoadConfig, or read from
// ACCRUAL_* environment variables with ConfigFromEnv.
type Config struct {
	// MinFee is the smallest fee a provider may register with.
	MinFee types.Amount `json:"min_fee" mapstructure:"min_fee" yaml:"min_fee" validate:"gte=0"`

	// BillingPeriod is the span one Fee pays for (default: 30 days).
	// Accrual uses whole seconds.
	BillingPeriod time.Duration `json:"billing_period" mapstructure:"billing_period" yaml:"billing_period" validate:"gte=1s"`

	// MaxProviders caps the number of live provider records (default: 200).
	MaxProviders int `json:"max_providers" mapstructure:"max_providers" yaml:"max_providers" validate:"gte=1"`

	// MinSubscriberProviders is the fewest providers a subscriber may
	// reference (default: 3).
	MinSubscriberProviders int `json:"min_subscriber_providers" mapstructure:"min_subscriber_providers" yaml:"min_subscriber_providers" validate:"gte=1"`

	// MaxSubscriberProviders is the most providers a subscriber may
	// reference (default: 14).
	MaxSubscriberProviders int `json:"max_subscriber_providers" mapstructure:"max_subscriber_providers" yaml:"max_subscriber_providers" validate:"gtefield=MinSubscriberProviders"`

	// Token labels the payment token amounts are denominated in.
	Token types.Token `json:"token" mapstructure:"token" yaml:"token"`

	// Admins may toggle provider activity. When empty anyone may.
	Admins []types.Identity `json:"admins" mapstructure:"admins" yaml:"admins" validate:"dive,required"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BillingPeriod:          DefaultBillingPeriod,
		MaxProviders:           DefaultMaxProviders,
		MinSubscriberProviders: DefaultMinSubscriberProviders,
		MaxSubscriberProviders: DefaultMaxSubscriberProviders,
		Token:                  types.DefaultToken,
	}
}

var validate = validator.New()

// Validate checks the configuration. The returned error joins one
// ValidationError per offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("accrual: validate config: %w", err)
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q (param %q, value %v)", fe.Tag(), fe.Param(), fe.Value()),
		})
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether who may toggle provider activity.
func (c Config) IsAdmin(who types.Identity) bool {
	if len(c.Admins) == 0 {
		return true
	}
	for _, a := range c.Admins {
		if a == who {
			return true
		}
	}
	return false
}

// mergeDefaults fills zero-valued fields from DefaultConfig.
func (c Config) mergeDefaults() Config {
	def := DefaultConfig()
	if c.BillingPeriod == 0 {
		c.BillingPeriod = def.BillingPeriod
	}
	if c.MaxProviders == 0 {
		c.MaxProviders = def.MaxProviders
	}
	if c.MinSubscriberProviders == 0 {
		c.MinSubscriberProviders = def.MinSubscriberProviders
	}
	if c.MaxSubscriberProviders == 0 {
		c.MaxSubscriberProviders = def.MaxSubscriberProviders
	}
	if c.Token.Symbol == "" {
		c.Token = def.Token
	}
	return c
}

// LoadConfig reads a YAML file. Missing fields take their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("accrual: read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("accrual: unmarshal config: %w", err)
	}

	c = c.mergeDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Environment variables read by ConfigFromEnv.
const (
	EnvMinFee                 = "ACCRUAL_MIN_FEE"
	EnvBillingPeriod          = "ACCRUAL_BILLING_PERIOD"
	EnvMaxProviders           = "ACCRUAL_MAX_PROVIDERS"
	EnvMinSubscriberProviders = "ACCRUAL_MIN_SUBSCRIBER_PROVIDERS"
	EnvMaxSubscriberProviders = "ACCRUAL_MAX_SUBSCRIBER_PROVIDERS"
	EnvTokenSymbol            = "ACCRUAL_TOKEN_SYMBOL"
	EnvTokenDecimals          = "ACCRUAL_TOKEN_DECIMALS"
	EnvAdmins                 = "ACCRUAL_ADMINS"
)

// ConfigFromEnv builds a Config from ACCRUAL_* variables, loading a .env
// file first when one exists. BillingPeriod accepts a Go duration ("720h")
// or a plain number of seconds.
func ConfigFromEnv() (Config, error) {
	// .env is optional
	_ = godotenv.Load() //nolint:errcheck // missing .env is not an error

	c := DefaultConfig()
	var errs []error

	if v, ok := os.LookupEnv(EnvMinFee); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		errs = append(errs, envErr(EnvMinFee, err))
		c.MinFee = types.Amount(n)
	}
	if v, ok := os.LookupEnv(EnvBillingPeriod); ok {
		d, err := parsePeriod(v)
		errs = append(errs, envErr(EnvBillingPeriod, err))
		c.BillingPeriod = d
	}
	if v, ok := os.LookupEnv(EnvMaxProviders); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr(EnvMaxProviders, err))
		c.MaxProviders = n
	}
	if v, ok := os.LookupEnv(EnvMinSubscriberProviders); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr(EnvMinSubscriberProviders, err))
		c.MinSubscriberProviders = n
	}
	if v, ok := os.LookupEnv(EnvMaxSubscriberProviders); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr(EnvMaxSubscriberProviders, err))
		c.MaxSubscriberProviders = n
	}
	if v, ok := os.LookupEnv(EnvTokenSymbol); ok {
		c.Token.Symbol = v
	}
	if v, ok := os.LookupEnv(EnvTokenDecimals); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr(EnvTokenDecimals, err))
		c.Token.Decimals = n
	}
	if v, ok := os.LookupEnv(EnvAdmins); ok {
		c.Admins = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.Admins = append(c.Admins, types.Identity(a))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func envErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return ValidationError{Field: name, Message: err.Error()}
}

func parsePeriod(v string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
