package accrual_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/accrual"
	"github.com/xraph/accrual/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := accrual.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BillingPeriod != 2592000*time.Second {
		t.Errorf("BillingPeriod = %v", cfg.BillingPeriod)
	}
	if cfg.MaxProviders != 200 || cfg.MinSubscriberProviders != 3 || cfg.MaxSubscriberProviders != 14 {
		t.Errorf("limits = %d %d..%d", cfg.MaxProviders, cfg.MinSubscriberProviders, cfg.MaxSubscriberProviders)
	}
	if !cfg.IsAdmin("anyone") {
		t.Error("empty admin list should allow anyone")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*accrual.Config)
	}{
		{"negative min fee", func(c *accrual.Config) { c.MinFee = -1 }},
		{"sub-second period", func(c *accrual.Config) { c.BillingPeriod = 500 * time.Millisecond }},
		{"zero capacity", func(c *accrual.Config) { c.MaxProviders = 0 }},
		{"zero min providers", func(c *accrual.Config) { c.MinSubscriberProviders = 0 }},
		{"max below min", func(c *accrual.Config) { c.MaxSubscriberProviders = 2 }},
		{"blank admin", func(c *accrual.Config) { c.Admins = []types.Identity{"root", ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := accrual.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !accrual.IsValidation(err) {
				t.Errorf("Validate() = %v, want validation error", err)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := accrual.Config{Admins: []types.Identity{"root", "ops"}}
	for who, want := range map[types.Identity]bool{"root": true, "ops": true, "alice": false, "": false} {
		if got := cfg.IsAdmin(who); got != want {
			t.Errorf("IsAdmin(%q) = %v, want %v", who, got, want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accrual.yaml")
	data := []byte(`
min_fee: 250
billing_period: 24h
max_subscriber_providers: 5
token:
  symbol: dai
  decimals: 18
admins: [root]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := accrual.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinFee != 250 || cfg.BillingPeriod != 24*time.Hour {
		t.Errorf("MinFee %d BillingPeriod %v", cfg.MinFee, cfg.BillingPeriod)
	}
	if cfg.MaxSubscriberProviders != 5 || cfg.MinSubscriberProviders != 3 || cfg.MaxProviders != 200 {
		t.Errorf("limits not merged with defaults: %+v", cfg)
	}
	if cfg.Token.Symbol != "dai" || cfg.Token.Decimals != 18 {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if len(cfg.Admins) != 1 || cfg.Admins[0] != "root" {
		t.Errorf("Admins = %v", cfg.Admins)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := accrual.LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: want error")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("max_providers: -3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := accrual.LoadConfig(bad); !accrual.IsValidation(err) {
		t.Errorf("invalid limits: err = %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(accrual.EnvMinFee, "10")
	t.Setenv(accrual.EnvBillingPeriod, "3600")
	t.Setenv(accrual.EnvMaxProviders, "50")
	t.Setenv(accrual.EnvTokenSymbol, "usdt")
	t.Setenv(accrual.EnvTokenDecimals, "6")
	t.Setenv(accrual.EnvAdmins, "root, ops ,")

	cfg, err := accrual.ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinFee != 10 || cfg.BillingPeriod != time.Hour || cfg.MaxProviders != 50 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Token != (types.Token{Symbol: "usdt", Decimals: 6}) {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if len(cfg.Admins) != 2 || cfg.Admins[1] != "ops" {
		t.Errorf("Admins = %v", cfg.Admins)
	}
}

func TestConfigFromEnvDuration(t *testing.T) {
	t.Setenv(accrual.EnvBillingPeriod, "720h")

	cfg, err := accrual.ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BillingPeriod != 720*time.Hour {
		t.Errorf("BillingPeriod = %v", cfg.BillingPeriod)
	}
}

func TestConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv(accrual.EnvMaxProviders, "lots")

	_, err := accrual.ConfigFromEnv()
	if !accrual.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
