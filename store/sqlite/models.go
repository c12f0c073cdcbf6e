package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/accrual/id"
	"github.com/xraph/accrual/provider"
	"github.com/xraph/accrual/subscriber"
	"github.com/xraph/accrual/types"
)

// ==================== Provider models ====================

type providerModel struct {
	grove.BaseModel `grove:"table:accrual_providers"`

	ID              int64     `grove:"id,pk"`
	Owner           string    `grove:"owner"`
	RegistrationKey string    `grove:"registration_key"`
	SubscriberCount int64     `grove:"subscriber_count"`
	LastSettled     time.Time `grove:"last_settled"`
	Fee             int64     `grove:"fee"`
	Balance         int64     `grove:"balance"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toProviderModel(p *provider.Provider) *providerModel {
	return &providerModel{
		ID:              int64(p.ID),
		Owner:           string(p.Owner),
		RegistrationKey: p.RegistrationKey,
		SubscriberCount: p.SubscriberCount,
		LastSettled:     p.LastSettled,
		Fee:             int64(p.Fee),
		Balance:         int64(p.Balance),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func fromProviderModel(m *providerModel) *provider.Provider {
	return &provider.Provider{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:              id.ProviderID(m.ID),
		Owner:           types.Identity(m.Owner),
		RegistrationKey: m.RegistrationKey,
		SubscriberCount: m.SubscriberCount,
		LastSettled:     m.LastSettled.UTC(),
		Fee:             types.Amount(m.Fee),
		Balance:         types.Amount(m.Balance),
	}
}

// ==================== Subscriber models ====================

type subscriberModel struct {
	grove.BaseModel `grove:"table:accrual_subscribers"`

	ID          int64           `grove:"id,pk"`
	Owner       string          `grove:"owner"`
	Plan        string          `grove:"plan"`
	CreatedDate time.Time       `grove:"created_date"`
	PausedDate  *time.Time      `grove:"paused_date"`
	Balance     int64           `grove:"balance"`
	ProviderIDs json.RawMessage `grove:"provider_ids"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toSubscriberModel(s *subscriber.Subscriber) *subscriberModel {
	providers, _ := json.Marshal(s.ProviderIDs) //nolint:errcheck // []uint64 always marshals

	m := &subscriberModel{
		ID:          int64(s.ID),
		Owner:       string(s.Owner),
		Plan:        string(s.Plan),
		CreatedDate: s.CreatedDate,
		Balance:     int64(s.Balance),
		ProviderIDs: providers,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.IsPaused() {
		paused := s.PausedDate
		m.PausedDate = &paused
	}
	return m
}

func fromSubscriberModel(m *subscriberModel) (*subscriber.Subscriber, error) {
	var providers []id.ProviderID
	if len(m.ProviderIDs) > 0 {
		if err := json.Unmarshal(m.ProviderIDs, &providers); err != nil {
			return nil, fmt.Errorf("subscriber %d: decode provider ids: %w", m.ID, err)
		}
	}

	s := &subscriber.Subscriber{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          id.SubscriberID(m.ID),
		Owner:       types.Identity(m.Owner),
		Plan:        subscriber.Plan(m.Plan),
		CreatedDate: m.CreatedDate.UTC(),
		Balance:     types.Amount(m.Balance),
		ProviderIDs: providers,
	}
	if m.PausedDate != nil {
		s.PausedDate = m.PausedDate.UTC()
	}
	return s, nil
}

// ==================== Bookkeeping models ====================

type activeModel struct {
	grove.BaseModel `grove:"table:accrual_active_providers"`

	ProviderID int64 `grove:"provider_id,pk"`
}

type keyModel struct {
	grove.BaseModel `grove:"table:accrual_registration_keys"`

	Key        string    `grove:"key,pk"`
	ConsumedAt time.Time `grove:"consumed_at"`
}

type sequenceModel struct {
	grove.BaseModel `grove:"table:accrual_sequences"`

	Name string `grove:"name,pk"`
	Last int64  `grove:"last"`
}
