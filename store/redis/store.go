// Package redis implements store.Store on Redis.
//
// Records are JSON documents in hashes keyed by handle. The active set and
// consumed registration keys are Redis sets. A change set is written in a
// single MULTI/EXEC transaction.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	accrualstore "github.com/xraph/accrual/store"
	"github.com/xraph/accrual/subscriber"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "accrual"

// raiseSequenceScript sets hash field ARGV[1] to ARGV[2] unless the stored
// value is already at least as high.
const raiseSequenceScript = `
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if tonumber(ARGV[2]) > cur then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
return 0`

// compile-time interface check
var _ accrualstore.Store = (*Store)(nil)

// Store implements store.Store using Redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a new Redis store.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op; Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("accrual/redis: ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string { return s.prefix + ":" + name }

// ==================== Load ====================

// Load reads every key into a snapshot.
func (s *Store) Load(ctx context.Context) (*accrualstore.Snapshot, error) {
	snap := &accrualstore.Snapshot{Sequences: make(map[string]id.Handle)}

	providers, err := s.client.HGetAll(ctx, s.key("providers")).Result()
	if err != nil {
		return nil, fmt.Errorf("accrual/redis: load providers: %w", err)
	}
	for field, raw := range providers {
		var p provider.Provider
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("accrual/redis: decode provider %s: %w", field, err)
		}
		snap.Providers = append(snap.Providers, &p)
	}
	sort.Slice(snap.Providers, func(i, j int) bool { return snap.Providers[i].ID < snap.Providers[j].ID })

	subscribers, err := s.client.HGetAll(ctx, s.key("subscribers")).Result()
	if err != nil {
		return nil, fmt.Errorf("accrual/redis: load subscribers: %w", err)
	}
	for field, raw := range subscribers {
		var sub subscriber.Subscriber
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("accrual/redis: decode subscriber %s: %w", field, err)
		}
		snap.Subscribers = append(snap.Subscribers, &sub)
	}
	sort.Slice(snap.Subscribers, func(i, j int) bool { return snap.Subscribers[i].ID < snap.Subscribers[j].ID })

	active, err := s.client.SMembers(ctx, s.key("active")).Result()
	if err != nil {
		return nil, fmt.Errorf("accrual/redis: load active set: %w", err)
	}
	for _, member := range active {
		h, err := id.ParseHandle(member)
		if err != nil {
			return nil, fmt.Errorf("accrual/redis: load active set: %w", err)
		}
		snap.Active = append(snap.Active, h)
	}
	sort.Slice(snap.Active, func(i, j int) bool { return snap.Active[i] < snap.Active[j] })

	keys, err := s.client.SMembers(ctx, s.key("keys")).Result()
	if err != nil {
		return nil, fmt.Errorf("accrual/redis: load registration keys: %w", err)
	}
	sort.Strings(keys)
	snap.Keys = keys

	seqs, err := s.client.HGetAll(ctx, s.key("sequences")).Result()
	if err != nil {
		return nil, fmt.Errorf("accrual/redis: load sequences: %w", err)
	}
	for name, raw := range seqs {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("accrual/redis: decode %s sequence: %w", name, err)
		}
		snap.Sequences[name] = id.Handle(v)
	}

	return snap, nil
}

// ==================== Apply ====================

// Apply writes a change set inside MULTI/EXEC.
func (s *Store) Apply(ctx context.Context, ch *accrualstore.Changes) error {
	if ch.IsEmpty() {
		return nil
	}

	providers, err := encodeProviders(ch.Providers)
	if err != nil {
		return err
	}
	subscribers, err := encodeSubscribers(ch.Subscribers)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(providers) > 0 {
			pipe.HSet(ctx, s.key("providers"), providers)
		}
		for _, h := range ch.DeleteProviders {
			pipe.HDel(ctx, s.key("providers"), h.String())
		}
		if len(subscribers) > 0 {
			pipe.HSet(ctx, s.key("subscribers"), subscribers)
		}
		for _, h := range ch.DeleteSubscribers {
			pipe.HDel(ctx, s.key("subscribers"), h.String())
		}
		for _, k := range ch.ConsumeKeys {
			pipe.SAdd(ctx, s.key("keys"), k)
		}
		for _, k := range ch.ReleaseKeys {
			pipe.SRem(ctx, s.key("keys"), k)
		}
		for _, f := range ch.Active {
			if f.Active {
				pipe.SAdd(ctx, s.key("active"), f.ID.String())
			} else {
				pipe.SRem(ctx, s.key("active"), f.ID.String())
			}
		}
		for name, last := range ch.Sequences {
			pipe.Eval(ctx, raiseSequenceScript, []string{s.key("sequences")}, name, last.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("accrual/redis: apply: %w", err)
	}
	return nil
}

func encodeProviders(providers []*provider.Provider) (map[string]any, error) {
	out := make(map[string]any, len(providers))
	for _, p := range providers {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("accrual/redis: encode provider %d: %w", p.ID, err)
		}
		out[p.ID.String()] = string(raw)
	}
	return out, nil
}

func encodeSubscribers(subscribers []*subscriber.Subscriber) (map[string]any, error) {
	out := make(map[string]any, len(subscribers))
	for _, sub := range subscribers {
		raw, err := json.Marshal(sub)
		if err != nil {
			return nil, fmt.Errorf("accrual/redis: encode subscriber %d: %w", sub.ID, err)
		}
		out[sub.ID.String()] = string(raw)
	}
	return out, nil
}
