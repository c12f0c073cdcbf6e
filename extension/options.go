package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/accrual"
	audithook "github.com/xraph/accrual/audit_hook"
	"github.com/xraph/accrual/observability"
	"github.com/xraph/accrual/plugin"
	"github.com/xraph/accrual/store"
	"github.com/xraph/accrual/store/mongo"
	"github.com/xraph/accrual/store/postgres"
	redisstore "github.com/xraph/accrual/store/redis"
	"github.com/xraph/accrual/store/sqlite"
	"github.com/xraph/accrual/transfer"
	"github.com/xraph/accrual/types"
)

// Option configures the Accrual Forge extension.
type Option func(*Extension)

// WithStore sets the store for the accrual engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engine with a PostgreSQL grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) { e.store = postgres.New(db) }
}

// WithSQLite backs the engine with a SQLite grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) { e.store = sqlite.New(db) }
}

// WithMongo backs the engine with a MongoDB grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) { e.store = mongo.New(db) }
}

// WithRedis backs the engine with an existing Redis client.
func WithRedis(client goredis.UniversalClient, opts ...redisstore.Option) Option {
	return func(e *Extension) { e.store = redisstore.New(client, opts...) }
}

// WithTransferor sets the asset transfer collaborator. Without one the
// extension uses an in-memory transfer.Custodian with unlimited holdings.
func WithTransferor(t transfer.Transferor) Option {
	return func(e *Extension) {
		e.transfers = t
	}
}

// WithLedgerOption passes an accrual.Option through to the underlying engine.
func WithLedgerOption(opt accrual.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers an accrual plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, accrual.WithPlugin(p))
	}
}

// WithAuditRecorder records ledger events through r.
func WithAuditRecorder(r audithook.Recorder, opts ...audithook.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, accrual.WithPlugin(audithook.New(r, opts...)))
	}
}

// WithMetrics exports ledger metrics to reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Extension) {
		m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
		e.ledgerOpts = append(e.ledgerOpts, accrual.WithPlugin(m))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithBillingPeriod sets the span one provider fee pays for.
func WithBillingPeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.BillingPeriod = d }
}

// WithMinFee sets the smallest fee a provider may register with.
func WithMinFee(fee types.Amount) Option {
	return func(e *Extension) { e.config.MinFee = fee }
}

// WithAdmins restricts provider activation to the given identities.
func WithAdmins(admins ...types.Identity) Option {
	return func(e *Extension) { e.config.Admins = admins }
}
