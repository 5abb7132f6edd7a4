package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avealis/inboxpilot/internal/infra"
)

// Store — единая точка доступа к Postgres. Все репозитории движка (конфиги,
// апрувы, журнал действий, пользователи) живут на одном пуле.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dbCfg infra.DatabaseConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid conn string: %w", err)
	}
	if dbCfg.MaxConns > 0 {
		cfg.MaxConns = dbCfg.MaxConns
	}
	if dbCfg.MinConns > 0 {
		cfg.MinConns = dbCfg.MinConns
	}
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool init failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema приводит схему к актуальной. Движок — один бинарь без внешнего
// мигратора, поэтому DDL идемпотентный (IF NOT EXISTS).
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("postgres: schema init failed: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS agent_configs (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    name              TEXT NOT NULL,
    autonomy_level    TEXT NOT NULL,
    check_interval_ms BIGINT NOT NULL,
    batch_size        INT NOT NULL,
    rules             JSONB NOT NULL DEFAULT '[]',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS approvals (
    id               TEXT PRIMARY KEY,
    agent_id         TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    item_id          TEXT NOT NULL,
    item             JSONB NOT NULL,
    decision         JSONB NOT NULL,
    status           TEXT NOT NULL DEFAULT 'PENDING',
    execution_status TEXT NOT NULL DEFAULT 'NONE',
    execution_error  TEXT NOT NULL DEFAULT '',
    reviewer_id      TEXT,
    comment          TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at      TIMESTAMPTZ
);

-- Сердце дедупликации: не более одного живого PENDING на пару (агент, письмо).
-- Partial index, резолвнутые заявки под ограничение не попадают.
CREATE UNIQUE INDEX IF NOT EXISTS approvals_pending_uniq
    ON approvals (agent_id, item_id) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS action_log (
    id          TEXT PRIMARY KEY,
    agent_id    TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    item_id     TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    reasoning   TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS action_log_agent_ts
    ON action_log (agent_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL DEFAULT '',
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'operator',
    scopes        JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
