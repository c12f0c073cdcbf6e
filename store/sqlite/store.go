// Package sqlite implements store.Store on SQLite through Grove.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	accrualstore "github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
)

// compile-time interface check
var _ accrualstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db    *grove.DB
	sdb   *sqlitedriver.SqliteDB
	begin txBeginner
}

// txBeginner opens the transaction Apply writes through.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.Tx, error)
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	sdb := sqlitedriver.Unwrap(db)
	return &Store{
		db:    db,
		sdb:   sdb,
		begin: sdb,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("accrual/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("accrual/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Load ====================

// Load reads every table into a snapshot.
func (s *Store) Load(ctx context.Context) (*accrualstore.Snapshot, error) {
	snap := &accrualstore.Snapshot{Sequences: make(map[string]id.Handle)}

	var providers []providerModel
	if err := s.sdb.NewSelect(&providers).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/sqlite: load providers: %w", err)
	}
	snap.Providers = make([]*provider.Provider, len(providers))
	for i := range providers {
		snap.Providers[i] = fromProviderModel(&providers[i])
	}

	var subscribers []subscriberModel
	if err := s.sdb.NewSelect(&subscribers).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/sqlite: load subscribers: %w", err)
	}
	snap.Subscribers = make([]*subscriber.Subscriber, len(subscribers))
	for i := range subscribers {
		sub, err := fromSubscriberModel(&subscribers[i])
		if err != nil {
			return nil, fmt.Errorf("accrual/sqlite: load subscribers: %w", err)
		}
		snap.Subscribers[i] = sub
	}

	var active []activeModel
	if err := s.sdb.NewSelect(&active).OrderExpr("provider_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/sqlite: load active set: %w", err)
	}
	snap.Active = make([]id.ProviderID, len(active))
	for i := range active {
		snap.Active[i] = id.ProviderID(active[i].ProviderID)
	}

	var keys []keyModel
	if err := s.sdb.NewSelect(&keys).Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/sqlite: load registration keys: %w", err)
	}
	snap.Keys = make([]string, len(keys))
	for i := range keys {
		snap.Keys[i] = keys[i].Key
	}

	var seqs []sequenceModel
	if err := s.sdb.NewSelect(&seqs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/sqlite: load sequences: %w", err)
	}
	for _, m := range seqs {
		snap.Sequences[m.Name] = id.Handle(m.Last)
	}

	return snap, nil
}

// ==================== Apply ====================

// Apply writes a change set in one transaction. Every statement is an
// upsert or a keyed delete, so replaying a set converges.
func (s *Store) Apply(ctx context.Context, ch *accrualstore.Changes) (err error) {
	if ch.IsEmpty() {
		return nil
	}

	tx, err := s.begin.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("accrual/sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // the apply error is what matters
		}
	}()

	if err := applyChanges(ctx, tx, ch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("accrual/sqlite: commit: %w", err)
	}
	return nil
}

const (
	upsertProviderSQL = `INSERT INTO accrual_providers
    (id, owner, registration_key, subscriber_count, last_settled, fee, balance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    owner = excluded.owner,
    registration_key = excluded.registration_key,
    subscriber_count = excluded.subscriber_count,
    last_settled = excluded.last_settled,
    fee = excluded.fee,
    balance = excluded.balance,
    updated_at = excluded.updated_at`

	upsertSubscriberSQL = `INSERT INTO accrual_subscribers
    (id, owner, plan, created_date, paused_date, balance, provider_ids, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    owner = excluded.owner,
    plan = excluded.plan,
    paused_date = excluded.paused_date,
    balance = excluded.balance,
    updated_at = excluded.updated_at`

	upsertSequenceSQL = `INSERT INTO accrual_sequences (name, last) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET last = MAX(accrual_sequences.last, excluded.last)`
)

func applyChanges(ctx context.Context, tx driver.Tx, ch *accrualstore.Changes) error {
	for _, p := range ch.Providers {
		m := toProviderModel(p)
		if _, err := tx.Exec(ctx, upsertProviderSQL,
			m.ID, m.Owner, m.RegistrationKey, m.SubscriberCount, m.LastSettled,
			m.Fee, m.Balance, m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("accrual/sqlite: upsert provider %d: %w", p.ID, err)
		}
	}
	for _, h := range ch.DeleteProviders {
		if _, err := tx.Exec(ctx, `DELETE FROM accrual_providers WHERE id = ?`, int64(h)); err != nil {
			return fmt.Errorf("accrual/sqlite: delete provider %d: %w", h, err)
		}
	}

	for _, sub := range ch.Subscribers {
		m := toSubscriberModel(sub)
		var paused any
		if m.PausedDate != nil {
			paused = *m.PausedDate
		}
		if _, err := tx.Exec(ctx, upsertSubscriberSQL,
			m.ID, m.Owner, m.Plan, m.CreatedDate, paused,
			m.Balance, string(m.ProviderIDs), m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return fmt.Errorf("accrual/sqlite: upsert subscriber %d: %w", sub.ID, err)
		}
	}
	for _, h := range ch.DeleteSubscribers {
		if _, err := tx.Exec(ctx, `DELETE FROM accrual_subscribers WHERE id = ?`, int64(h)); err != nil {
			return fmt.Errorf("accrual/sqlite: delete subscriber %d: %w", h, err)
		}
	}

	t := now()
	for _, k := range ch.ConsumeKeys {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accrual_registration_keys (key, consumed_at) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
			k, t,
		); err != nil {
			return fmt.Errorf("accrual/sqlite: consume registration key: %w", err)
		}
	}
	for _, k := range ch.ReleaseKeys {
		if _, err := tx.Exec(ctx, `DELETE FROM accrual_registration_keys WHERE key = ?`, k); err != nil {
			return fmt.Errorf("accrual/sqlite: release registration key: %w", err)
		}
	}

	for _, f := range ch.Active {
		query := `DELETE FROM accrual_active_providers WHERE provider_id = ?`
		if f.Active {
			query = `INSERT INTO accrual_active_providers (provider_id) VALUES (?) ON CONFLICT (provider_id) DO NOTHING`
		}
		if _, err := tx.Exec(ctx, query, int64(f.ID)); err != nil {
			return fmt.Errorf("accrual/sqlite: set provider %d active=%t: %w", f.ID, f.Active, err)
		}
	}

	for name, last := range ch.Sequences {
		if _, err := tx.Exec(ctx, upsertSequenceSQL, name, int64(last)); err != nil {
			return fmt.Errorf("accrual/sqlite: save %s sequence: %w", name, err)
		}
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}
