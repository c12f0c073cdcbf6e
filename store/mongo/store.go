// Package mongo implements store.Store on MongoDB through Grove.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	accrualstore "github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
)

// Collection name constants.
const (
	colProviders   = "accrual_providers"
	colSubscribers = "accrual_subscribers"
	colActive      = "accrual_active_providers"
	colKeys        = "accrual_registration_keys"
	colSequences   = "accrual_sequences"
)

// compile-time interface check
var _ accrualstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all accrual collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("accrual/mongo: migrate %s indexes: %w", col, err)
		}
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

// Load reads every collection into a snapshot.
func (s *Store) Load(ctx context.Context) (*accrualstore.Snapshot, error) {
	snap := &accrualstore.Snapshot{Sequences: make(map[string]id.Handle)}
	byID := bson.D{{Key: "_id", Value: 1}}

	var providers []providerModel
	if err := s.mdb.NewFind(&providers).Filter(bson.M{}).Sort(byID).Scan(ctx); err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("accrual/mongo: load providers: %w", err)
	}
	snap.Providers = make([]*provider.Provider, len(providers))
	for i := range providers {
		snap.Providers[i] = fromProviderModel(&providers[i])
	}

	var subscribers []subscriberModel
	if err := s.mdb.NewFind(&subscribers).Filter(bson.M{}).Sort(byID).Scan(ctx); err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("accrual/mongo: load subscribers: %w", err)
	}
	snap.Subscribers = make([]*subscriber.Subscriber, len(subscribers))
	for i := range subscribers {
		snap.Subscribers[i] = fromSubscriberModel(&subscribers[i])
	}

	var active []activeModel
	if err := s.mdb.NewFind(&active).Filter(bson.M{}).Sort(byID).Scan(ctx); err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("accrual/mongo: load active set: %w", err)
	}
	snap.Active = make([]id.ProviderID, len(active))
	for i := range active {
		snap.Active[i] = id.ProviderID(active[i].ProviderID)
	}

	var keys []keyModel
	if err := s.mdb.NewFind(&keys).Filter(bson.M{}).Scan(ctx); err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("accrual/mongo: load registration keys: %w", err)
	}
	snap.Keys = make([]string, len(keys))
	for i := range keys {
		snap.Keys[i] = keys[i].Key
	}

	var seqs []sequenceModel
	if err := s.mdb.NewFind(&seqs).Filter(bson.M{}).Scan(ctx); err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("accrual/mongo: load sequences: %w", err)
	}
	for _, m := range seqs {
		snap.Sequences[m.Name] = id.Handle(m.Last)
	}

	return snap, nil
}

// ==================== Apply ====================

// Apply writes a change set inside a multi-document transaction. Every
// write is a keyed upsert or delete, so a retried transaction converges.
// Transactions need a replica set or sharded cluster.
func (s *Store) Apply(ctx context.Context, ch *accrualstore.Changes) error {
	if ch.IsEmpty() {
		return nil
	}

	client := s.mdb.Collection(colProviders).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("accrual/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	if _, err := sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, s.applyChanges(txCtx, ch)
	}); err != nil {
		return fmt.Errorf("accrual/mongo: apply: %w", err)
	}
	return nil
}

func (s *Store) applyChanges(ctx context.Context, ch *accrualstore.Changes) error {
	providers := s.mdb.Collection(colProviders)
	for _, p := range ch.Providers {
		m := toProviderModel(p)
		if _, err := providers.UpdateOne(ctx,
			bson.M{"_id": m.ID},
			bson.M{"$set": bson.M{
				"owner":            m.Owner,
				"registration_key": m.RegistrationKey,
				"subscriber_count": m.SubscriberCount,
				"last_settled":     m.LastSettled,
				"fee":              m.Fee,
				"balance":          m.Balance,
				"created_at":       m.CreatedAt,
				"updated_at":       m.UpdatedAt,
			}},
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("upsert provider %d: %w", p.ID, err)
		}
	}
	for _, h := range ch.DeleteProviders {
		if _, err := providers.DeleteOne(ctx, bson.M{"_id": int64(h)}); err != nil {
			return fmt.Errorf("delete provider %d: %w", h, err)
		}
	}

	subscribers := s.mdb.Collection(colSubscribers)
	for _, sub := range ch.Subscribers {
		if _, err := subscribers.UpdateOne(ctx,
			bson.M{"_id": int64(sub.ID)},
			subscriberUpdate(toSubscriberModel(sub)),
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("upsert subscriber %d: %w", sub.ID, err)
		}
	}
	for _, h := range ch.DeleteSubscribers {
		if _, err := subscribers.DeleteOne(ctx, bson.M{"_id": int64(h)}); err != nil {
			return fmt.Errorf("delete subscriber %d: %w", h, err)
		}
	}

	keys := s.mdb.Collection(colKeys)
	t := now()
	for _, k := range ch.ConsumeKeys {
		if _, err := keys.UpdateOne(ctx,
			bson.M{"_id": k},
			bson.M{"$setOnInsert": bson.M{"consumed_at": t}},
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("consume registration key: %w", err)
		}
	}
	for _, k := range ch.ReleaseKeys {
		if _, err := keys.DeleteOne(ctx, bson.M{"_id": k}); err != nil {
			return fmt.Errorf("release registration key: %w", err)
		}
	}

	active := s.mdb.Collection(colActive)
	for _, f := range ch.Active {
		filter := bson.M{"_id": int64(f.ID)}
		var err error
		if f.Active {
			_, err = active.ReplaceOne(ctx, filter, filter, options.Replace().SetUpsert(true))
		} else {
			_, err = active.DeleteOne(ctx, filter)
		}
		if err != nil {
			return fmt.Errorf("set provider %d active=%t: %w", f.ID, f.Active, err)
		}
	}

	sequences := s.mdb.Collection(colSequences)
	for name, last := range ch.Sequences {
		if _, err := sequences.UpdateOne(ctx,
			bson.M{"_id": name},
			bson.M{"$max": bson.M{"last": int64(last)}},
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("save %s sequence: %w", name, err)
		}
	}
	return nil
}

// subscriberUpdate sets every field and clears paused_date on active
// subscriptions.
func subscriberUpdate(m *subscriberModel) bson.M {
	set := bson.M{
		"owner":        m.Owner,
		"plan":         m.Plan,
		"created_date": m.CreatedDate,
		"balance":      m.Balance,
		"provider_ids": m.ProviderIDs,
		"created_at":   m.CreatedAt,
		"updated_at":   m.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if m.PausedDate != nil {
		set["paused_date"] = *m.PausedDate
	} else {
		update["$unset"] = bson.M{"paused_date": ""}
	}
	return update
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all accrual collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colProviders: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colSubscribers: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "provider_ids", Value: 1}}},
		},
		colKeys: {
			{Keys: bson.D{{Key: "consumed_at", Value: -1}}},
		},
	}
}
