package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the accrual store.
var Migrations = migrate.NewGroup("accrual")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_accrual_providers",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accrual_providers (
    id               BIGINT PRIMARY KEY,
    owner            TEXT NOT NULL,
    registration_key TEXT NOT NULL DEFAULT '',
    subscriber_count BIGINT NOT NULL DEFAULT 0 CHECK (subscriber_count >= 0),
    last_settled     TIMESTAMPTZ NOT NULL,
    fee              BIGINT NOT NULL,
    balance          BIGINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_accrual_providers_owner ON accrual_providers (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS accrual_providers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_accrual_subscribers",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accrual_subscribers (
    id           BIGINT PRIMARY KEY,
    owner        TEXT NOT NULL,
    plan         TEXT NOT NULL DEFAULT 'basic',
    created_date TIMESTAMPTZ NOT NULL,
    paused_date  TIMESTAMPTZ,
    balance      BIGINT NOT NULL DEFAULT 0,
    provider_ids JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_accrual_subscribers_owner ON accrual_subscribers (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS accrual_subscribers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_accrual_bookkeeping",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS accrual_active_providers (
    provider_id BIGINT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS accrual_registration_keys (
    key         TEXT PRIMARY KEY,
    consumed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS accrual_sequences (
    name TEXT PRIMARY KEY,
    last BIGINT NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS accrual_sequences;
DROP TABLE IF EXISTS accrual_registration_keys;
DROP TABLE IF EXISTS accrual_active_providers;
`)
				return err
			},
		},
	)
}
