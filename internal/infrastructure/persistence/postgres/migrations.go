package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations(), tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: no down SQL for version %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status lists migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// Migrations returns the embedded schema steps in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_children", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_missions", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_rewards", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "add_child_profile", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "create_notifications", UpSQL: migration005Up, DownSQL: migration005Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: GUARDIANS, CHILDREN, LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS guardians (
    id           TEXT PRIMARY KEY,
    email        TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    language     VARCHAR(2) NOT NULL DEFAULT 'es',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS children (
    id                         TEXT PRIMARY KEY,
    guardian_id                TEXT NOT NULL,
    display_name               VARCHAR(100) NOT NULL,
    alter_ego_name             VARCHAR(100) NOT NULL DEFAULT '',
    age_years                  SMALLINT NOT NULL,
    points_balance             INTEGER NOT NULL DEFAULT 0,
    rank                       VARCHAR(20) NOT NULL DEFAULT 'INICIADO',
    initiation_completed       BOOLEAN NOT NULL DEFAULT FALSE,
    initiated_at               TIMESTAMPTZ,
    requires_parent_assistance BOOLEAN NOT NULL,
    can_browse_community       BOOLEAN NOT NULL,
    can_post_to_community      BOOLEAN NOT NULL,
    can_view_global_map        BOOLEAN NOT NULL,
    archangel_id               TEXT NOT NULL DEFAULT '',
    secret_code                CHAR(6) NOT NULL,
    created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT ck_children_balance CHECK (points_balance >= 0),
    CONSTRAINT ck_children_age CHECK (age_years BETWEEN 0 AND 18),
    CONSTRAINT ck_children_rank CHECK (rank IN ('INICIADO', 'VALIENTE', 'SABIO', 'MAESTRO'))
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_children_secret_code ON children(secret_code);
CREATE INDEX IF NOT EXISTS idx_children_guardian ON children(guardian_id, created_at);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id            TEXT PRIMARY KEY,
    seq           BIGSERIAL NOT NULL,
    child_id      TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    delta         INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    reason        VARCHAR(30) NOT NULL,
    reference_id  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT ck_ledger_delta CHECK (delta <> 0),
    CONSTRAINT ck_ledger_balance CHECK (balance_after >= 0),
    CONSTRAINT ck_ledger_reason CHECK (reason IN ('CHALLENGE_APPROVED', 'REDEMPTION', 'WELCOME_BONUS'))
);

CREATE INDEX IF NOT EXISTS idx_ledger_child_seq ON ledger_entries(child_id, seq DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS ledger_entries;
DROP TABLE IF EXISTS children;
DROP TABLE IF EXISTS guardians;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: MISSIONS, CHALLENGES, PROGRESS, SUBMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS missions (
    id                   TEXT PRIMARY KEY,
    year                 SMALLINT NOT NULL,
    month                SMALLINT NOT NULL,
    title                TEXT NOT NULL,
    description          TEXT NOT NULL DEFAULT '',
    archangel_id         TEXT NOT NULL DEFAULT '',
    points_per_challenge INTEGER NOT NULL,
    published_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT ux_missions_period UNIQUE (year, month),
    CONSTRAINT ck_missions_month CHECK (month BETWEEN 1 AND 12)
);

CREATE TABLE IF NOT EXISTS challenges (
    id                  TEXT PRIMARY KEY,
    mission_id          TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
    sort_order          INTEGER NOT NULL,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    allowed_proof_kinds TEXT[] NOT NULL,
    point_reward        INTEGER NOT NULL,

    CONSTRAINT ux_challenges_order UNIQUE (mission_id, sort_order),
    CONSTRAINT ck_challenges_reward CHECK (point_reward >= 0)
);

CREATE TABLE IF NOT EXISTS mission_progress (
    child_id              TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    mission_id            TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
    completion_percentage SMALLINT NOT NULL DEFAULT 0,
    started_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at          TIMESTAMPTZ,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (child_id, mission_id),
    CONSTRAINT ck_progress_pct CHECK (completion_percentage BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS submissions (
    id             TEXT PRIMARY KEY,
    child_id       TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    challenge_id   TEXT NOT NULL REFERENCES challenges(id),
    mission_id     TEXT NOT NULL REFERENCES missions(id),
    proof_kind     VARCHAR(10) NOT NULL,
    proof_refs     TEXT[] NOT NULL,
    status         VARCHAR(10) NOT NULL DEFAULT 'PENDING',
    submitted_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reviewed_at    TIMESTAMPTZ,
    reviewer_id    TEXT NOT NULL DEFAULT '',
    notes          TEXT NOT NULL DEFAULT '',
    points_awarded INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT ck_submissions_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
    CONSTRAINT ck_submissions_kind CHECK (proof_kind IN ('photo', 'video', 'audio')),
    CONSTRAINT ck_submissions_refs CHECK (cardinality(proof_refs) > 0)
);

-- At most one non-terminal submission per child and challenge.
CREATE UNIQUE INDEX IF NOT EXISTS ux_submissions_active
    ON submissions(child_id, challenge_id)
    WHERE status IN ('PENDING', 'APPROVED');

CREATE INDEX IF NOT EXISTS idx_submissions_child ON submissions(child_id, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_pending ON submissions(submitted_at) WHERE status = 'PENDING';
`

const migration002Down = `
DROP TABLE IF EXISTS submissions;
DROP TABLE IF EXISTS mission_progress;
DROP TABLE IF EXISTS challenges;
DROP TABLE IF EXISTS missions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: REWARDS, REDEMPTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS rewards (
    id              TEXT PRIMARY KEY,
    code            VARCHAR(50) NOT NULL,
    kind            VARCHAR(20) NOT NULL,
    name_es         TEXT NOT NULL DEFAULT '',
    name_en         TEXT NOT NULL DEFAULT '',
    description_es  TEXT NOT NULL DEFAULT '',
    description_en  TEXT NOT NULL DEFAULT '',
    cost            INTEGER NOT NULL DEFAULT 0,
    icon_url        TEXT NOT NULL DEFAULT '',
    rarity          VARCHAR(20) NOT NULL DEFAULT 'COMMON',
    redeemable      BOOLEAN NOT NULL DEFAULT FALSE,
    remaining_stock INTEGER,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT ux_rewards_code UNIQUE (code),
    CONSTRAINT ck_rewards_cost CHECK (cost >= 0),
    CONSTRAINT ck_rewards_stock CHECK (remaining_stock IS NULL OR remaining_stock >= 0),
    CONSTRAINT ck_rewards_kind CHECK (kind IN ('BADGE', 'DIGITAL', 'PHYSICAL', 'EXPERIENCE')),
    CONSTRAINT ck_rewards_rarity CHECK (rarity IN ('COMMON', 'RARE', 'EPIC', 'LEGENDARY'))
);

CREATE TABLE IF NOT EXISTS redemptions (
    id          TEXT PRIMARY KEY,
    child_id    TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    reward_id   TEXT NOT NULL REFERENCES rewards(id),
    reward_code VARCHAR(50) NOT NULL,
    source      VARCHAR(10) NOT NULL,
    cost_paid   INTEGER NOT NULL DEFAULT 0,
    redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    shipping    JSONB,
    metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,

    CONSTRAINT ck_redemptions_source CHECK (source IN ('REDEEMED', 'AWARDED')),
    CONSTRAINT ck_redemptions_cost CHECK (cost_paid >= 0)
);

CREATE INDEX IF NOT EXISTS idx_redemptions_child ON redemptions(child_id, redeemed_at DESC);
CREATE INDEX IF NOT EXISTS idx_redemptions_child_code ON redemptions(child_id, reward_code);
`

const migration003Down = `
DROP TABLE IF EXISTS redemptions;
DROP TABLE IF EXISTS rewards;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CHILD PROFILE
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
ALTER TABLE children ADD COLUMN IF NOT EXISTS avatar_url TEXT NOT NULL DEFAULT '';
ALTER TABLE children ADD COLUMN IF NOT EXISTS country_code VARCHAR(2) NOT NULL DEFAULT '';
`

const migration004Down = `
ALTER TABLE children DROP COLUMN IF EXISTS country_code;
ALTER TABLE children DROP COLUMN IF EXISTS avatar_url;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: NOTIFICATION INBOX
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
CREATE TABLE IF NOT EXISTS notifications (
    id             TEXT PRIMARY KEY,
    recipient_id   TEXT NOT NULL,
    child_id       TEXT REFERENCES children(id) ON DELETE SET NULL,
    kind           VARCHAR(30) NOT NULL,
    payload        JSONB NOT NULL DEFAULT '{}'::jsonb,
    title_es       TEXT NOT NULL DEFAULT '',
    title_en       TEXT NOT NULL DEFAULT '',
    body_es        TEXT NOT NULL DEFAULT '',
    body_en        TEXT NOT NULL DEFAULT '',
    is_read        BOOLEAN NOT NULL DEFAULT FALSE,
    read_at        TIMESTAMPTZ,
    delivered      BOOLEAN NOT NULL DEFAULT FALSE,
    channel        VARCHAR(10) NOT NULL DEFAULT '',
    delivery_error TEXT NOT NULL DEFAULT '',
    delivered_at   TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(recipient_id) WHERE NOT is_read;
`

const migration005Down = `
DROP TABLE IF EXISTS notifications;
`
