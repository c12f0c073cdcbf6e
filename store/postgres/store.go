// Package postgres implements store.Store on PostgreSQL through Grove.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	accrualstore "github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
)

// compile-time interface check
var _ accrualstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("accrual/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("accrual/postgres: migration failed: %w", err)
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
	if err := s.pg.NewSelect(&providers).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/postgres: load providers: %w", err)
	}
	snap.Providers = make([]*provider.Provider, len(providers))
	for i := range providers {
		snap.Providers[i] = fromProviderModel(&providers[i])
	}

	var subscribers []subscriberModel
	if err := s.pg.NewSelect(&subscribers).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/postgres: load subscribers: %w", err)
	}
	snap.Subscribers = make([]*subscriber.Subscriber, len(subscribers))
	for i := range subscribers {
		sub, err := fromSubscriberModel(&subscribers[i])
		if err != nil {
			return nil, fmt.Errorf("accrual/postgres: load subscribers: %w", err)
		}
		snap.Subscribers[i] = sub
	}

	var active []activeModel
	if err := s.pg.NewSelect(&active).OrderExpr("provider_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/postgres: load active set: %w", err)
	}
	snap.Active = make([]id.ProviderID, len(active))
	for i := range active {
		snap.Active[i] = id.ProviderID(active[i].ProviderID)
	}

	var keys []keyModel
	if err := s.pg.NewSelect(&keys).Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/postgres: load registration keys: %w", err)
	}
	snap.Keys = make([]string, len(keys))
	for i := range keys {
		snap.Keys[i] = keys[i].Key
	}

	var seqs []sequenceModel
	if err := s.pg.NewSelect(&seqs).Scan(ctx); err != nil {
		return nil, fmt.Errorf("accrual/postgres: load sequences: %w", err)
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

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("accrual/postgres: begin: %w", err)
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
		return fmt.Errorf("accrual/postgres: commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgdriver.PgDB and *pgdriver.PgTx.
type querier interface {
	NewInsert(model any) *pgdriver.InsertQuery
	NewDelete(model any) *pgdriver.DeleteQuery
}

var (
	_ querier = (*pgdriver.PgDB)(nil)
	_ querier = (*pgdriver.PgTx)(nil)
)

func applyChanges(ctx context.Context, q querier, ch *accrualstore.Changes) error {
	if err := upsertProviders(ctx, q, ch.Providers); err != nil {
		return err
	}
	for _, h := range ch.DeleteProviders {
		if _, err := q.NewDelete((*providerModel)(nil)).
			Where("id = $1", int64(h)).
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: delete provider %d: %w", h, err)
		}
	}
	if err := upsertSubscribers(ctx, q, ch.Subscribers); err != nil {
		return err
	}
	for _, h := range ch.DeleteSubscribers {
		if _, err := q.NewDelete((*subscriberModel)(nil)).
			Where("id = $1", int64(h)).
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: delete subscriber %d: %w", h, err)
		}
	}
	if err := applyKeys(ctx, q, ch.ConsumeKeys, ch.ReleaseKeys); err != nil {
		return err
	}
	if err := applyActive(ctx, q, ch.Active); err != nil {
		return err
	}
	return applySequences(ctx, q, ch.Sequences)
}

func upsertProviders(ctx context.Context, q querier, providers []*provider.Provider) error {
	if len(providers) == 0 {
		return nil
	}
	models := make([]providerModel, len(providers))
	for i, p := range providers {
		models[i] = *toProviderModel(p)
	}
	_, err := q.NewInsert(&models).
		OnConflict("(id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("registration_key = EXCLUDED.registration_key").
		Set("subscriber_count = EXCLUDED.subscriber_count").
		Set("last_settled = EXCLUDED.last_settled").
		Set("fee = EXCLUDED.fee").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accrual/postgres: upsert providers: %w", err)
	}
	return nil
}

func upsertSubscribers(ctx context.Context, q querier, subscribers []*subscriber.Subscriber) error {
	if len(subscribers) == 0 {
		return nil
	}
	models := make([]subscriberModel, len(subscribers))
	for i, sub := range subscribers {
		models[i] = *toSubscriberModel(sub)
	}
	_, err := q.NewInsert(&models).
		OnConflict("(id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("plan = EXCLUDED.plan").
		Set("paused_date = EXCLUDED.paused_date").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("accrual/postgres: upsert subscribers: %w", err)
	}
	return nil
}

func applyKeys(ctx context.Context, q querier, consume, release []string) error {
	if len(consume) > 0 {
		t := now()
		models := make([]keyModel, len(consume))
		for i, k := range consume {
			models[i] = keyModel{Key: k, ConsumedAt: t}
		}
		if _, err := q.NewInsert(&models).
			OnConflict("(key) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: consume registration keys: %w", err)
		}
	}
	for _, k := range release {
		if _, err := q.NewDelete((*keyModel)(nil)).
			Where("key = $1", k).
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: release registration key: %w", err)
		}
	}
	return nil
}

func applyActive(ctx context.Context, q querier, flags []accrualstore.ActiveFlag) error {
	for _, f := range flags {
		if f.Active {
			m := &activeModel{ProviderID: int64(f.ID)}
			if _, err := q.NewInsert(m).
				OnConflict("(provider_id) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("accrual/postgres: activate provider %d: %w", f.ID, err)
			}
			continue
		}
		if _, err := q.NewDelete((*activeModel)(nil)).
			Where("provider_id = $1", int64(f.ID)).
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: deactivate provider %d: %w", f.ID, err)
		}
	}
	return nil
}

func applySequences(ctx context.Context, q querier, seqs map[string]id.Handle) error {
	for name, last := range seqs {
		m := &sequenceModel{Name: name, Last: int64(last)}
		if _, err := q.NewInsert(m).
			OnConflict("(name) DO UPDATE").
			Set("last = GREATEST(accrual_sequences.last, EXCLUDED.last)").
			Exec(ctx); err != nil {
			return fmt.Errorf("accrual/postgres: save %s sequence: %w", name, err)
		}
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}
