package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the gatehouse store
// (PostgreSQL).
var Migrations = migrate.NewGroup("gatehouse")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_memberships",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_memberships (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL,
    user_id         TEXT NOT NULL UNIQUE,
    label           TEXT NOT NULL DEFAULT '',
    suspended       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_memberships_account ON gatehouse_memberships (account_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_memberships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grants",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_grants (
    id              TEXT PRIMARY KEY,
    account_id      TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    key             TEXT NOT NULL,
    granted         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(user_id, key)
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_grants_user ON gatehouse_grants (user_id);
CREATE INDEX IF NOT EXISTS idx_gatehouse_grants_account ON gatehouse_grants (account_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_plans",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_plans (
    id              TEXT PRIMARY KEY,
    slug            TEXT NOT NULL UNIQUE,
    name            TEXT NOT NULL,
    features        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subscriptions",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_subscriptions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL UNIQUE,
    plan_id         TEXT NOT NULL REFERENCES gatehouse_plans(id),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_subs_plan ON gatehouse_subscriptions (plan_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_log",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_audit_log (
    id              TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    actor_id        TEXT NOT NULL,
    target_id       TEXT NOT NULL DEFAULT '',
    impersonating   BOOLEAN NOT NULL DEFAULT FALSE,
    role_class      TEXT NOT NULL DEFAULT '',
    requirement     TEXT NOT NULL DEFAULT '',
    outcome         TEXT NOT NULL DEFAULT '',
    code            TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL DEFAULT '',
    eval_time_ns    BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_audit_actor ON gatehouse_audit_log (actor_id);
CREATE INDEX IF NOT EXISTS idx_gatehouse_audit_kind ON gatehouse_audit_log (kind);
CREATE INDEX IF NOT EXISTS idx_gatehouse_audit_created ON gatehouse_audit_log (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_audit_log`)
				return err
			},
		},
	)
}
